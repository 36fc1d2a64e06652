package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeContent canonicalizes text before hashing: CRLF to LF, trailing
// whitespace per line stripped, outer whitespace trimmed. Hashing the
// normalized form keeps re-ingest of the same remote object byte-stable.
func NormalizeContent(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ContentHash is the lowercase hex SHA-256 of the normalized content. Unique
// per owning user; duplicate ingest collapses to the existing document.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(NormalizeContent(content)))
	return hex.EncodeToString(sum[:])
}

// UniqueIdentifierHash derives the per-space natural key from the connector
// type and the source's stable remote id, so the same remote object always
// maps to one document row.
func UniqueIdentifierHash(connectorType, remoteID string) string {
	sum := sha256.Sum256([]byte(connectorType + "\x00" + remoteID))
	return hex.EncodeToString(sum[:])
}
