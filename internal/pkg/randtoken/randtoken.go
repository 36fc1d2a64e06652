package randtoken

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// New returns a URL-safe token built from n random bytes.
func New(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("token size must be positive")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
