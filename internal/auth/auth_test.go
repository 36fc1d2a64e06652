package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/platform/apierr"
)

func testService(accessTTL time.Duration) *Service {
	return &Service{
		log:       logger.NewNop(),
		secret:    []byte("test-secret"),
		accessTTL: accessTTL,
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	s := testService(time.Minute)
	userID := uuid.New()

	token, err := s.signAccessToken(userID)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.ParseAccessToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if got != userID {
		t.Fatalf("subject mismatch: got %s, want %s", got, userID)
	}
}

func TestParseAccessTokenRejectsWrongSecret(t *testing.T) {
	issuer := testService(time.Minute)
	token, err := issuer.signAccessToken(uuid.New())
	if err != nil {
		t.Fatal(err)
	}

	verifier := testService(time.Minute)
	verifier.secret = []byte("different-secret")
	if _, err := verifier.ParseAccessToken(token); err == nil {
		t.Fatal("token signed with another secret accepted")
	} else if apierr.CodeOf(err) != apierr.CodeUnauthorized {
		t.Fatalf("expected unauthorized code, got %q", apierr.CodeOf(err))
	}
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	s := testService(-time.Minute)
	token, err := s.signAccessToken(uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ParseAccessToken(token); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestParseAccessTokenRejectsGarbage(t *testing.T) {
	s := testService(time.Minute)
	for _, tok := range []string{"", "not-a-jwt", "aaa.bbb.ccc"} {
		if _, err := s.ParseAccessToken(tok); err == nil {
			t.Fatalf("garbage token %q accepted", tok)
		}
	}
}

func TestHashTokenStable(t *testing.T) {
	if hashToken("abc") != hashToken("abc") {
		t.Fatal("same input must hash identically")
	}
	if hashToken("abc") == hashToken("abd") {
		t.Fatal("different inputs collided")
	}
	if len(hashToken("abc")) != 64 {
		t.Fatalf("expected sha256 hex, got %d chars", len(hashToken("abc")))
	}
}
