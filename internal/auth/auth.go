package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	userrepo "github.com/surfsense/surfsense-backend/internal/data/repos/user"
	types "github.com/surfsense/surfsense-backend/internal/domain"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/pkg/randtoken"
	"github.com/surfsense/surfsense-backend/internal/platform/apierr"
)

const (
	refreshTokenBytes = 32
	minPasswordLen    = 8
)

// AvatarGenerator decouples auth from the avatar renderer; registration
// calls it best-effort after the user row commits.
type AvatarGenerator interface {
	GenerateAndStore(ctx context.Context, userID uuid.UUID, displayName, email string) (string, error)
}

type Service struct {
	db         *gorm.DB
	log        *logger.Logger
	users      userrepo.UserRepo
	tokens     userrepo.RefreshTokenRepo
	avatars    AvatarGenerator
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewService(
	db *gorm.DB,
	log *logger.Logger,
	users userrepo.UserRepo,
	tokens userrepo.RefreshTokenRepo,
	avatars AvatarGenerator,
	jwtSecret string,
	accessTTL, refreshTTL time.Duration,
) *Service {
	return &Service{
		db:         db,
		log:        log.With("service", "AuthService"),
		users:      users,
		tokens:     tokens,
		avatars:    avatars,
		secret:     []byte(jwtSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// TokenPair is one issued credential set. The refresh token is opaque and
// single-use; presenting it again after rotation revokes its family.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

func (s *Service) Register(ctx context.Context, email, password, displayName string) (*types.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apierr.Validation(fmt.Errorf("invalid email address"))
	}
	if len(password) < minPasswordLen {
		return nil, apierr.Validation(fmt.Errorf("password must be at least %d characters", minPasswordLen))
	}

	existing, err := s.users.GetByEmails(dbctx.Context{Ctx: ctx}, []string{email})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, apierr.Validation(fmt.Errorf("email already registered"))
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &types.User{
		Email:       email,
		Password:    string(hashed),
		DisplayName: strings.TrimSpace(displayName),
	}
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, cErr := s.users.Create(dbctx.Context{Ctx: ctx, Tx: tx}, []*types.User{user})
		if cErr != nil {
			return cErr
		}
		user = rows[0]
		return nil
	}); err != nil {
		return nil, err
	}

	if s.avatars != nil {
		if url, aErr := s.avatars.GenerateAndStore(ctx, user.ID, user.DisplayName, user.Email); aErr != nil {
			s.log.Warn("avatar generation failed", "user_id", user.ID, "error", aErr)
		} else {
			user.AvatarURL = url
		}
	}
	return user, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*types.User, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	users, err := s.users.GetByEmails(dbctx.Context{Ctx: ctx}, []string{email})
	if err != nil {
		return nil, nil, err
	}
	if len(users) == 0 {
		return nil, nil, apierr.Unauthorized(fmt.Errorf("invalid email or password"))
	}
	user := users[0]
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, nil, apierr.Unauthorized(fmt.Errorf("invalid email or password"))
	}

	pair, err := s.issueTokens(ctx, user.ID, uuid.New())
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh rotates the presented refresh token. A rotated or revoked token
// means the credential leaked to a second holder, so the whole family dies.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	row, err := s.tokens.GetByTokenHash(dbctx.Context{Ctx: ctx}, hashToken(refreshToken))
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, apierr.Unauthorized(fmt.Errorf("unknown refresh token"))
	}
	if row.RevokedAt != nil || row.RotatedAt != nil {
		if rErr := s.tokens.RevokeFamily(dbctx.Context{Ctx: ctx}, row.FamilyID); rErr != nil {
			s.log.Error("revoke token family failed", "family_id", row.FamilyID, "error", rErr)
		}
		s.log.Warn("refresh token reuse detected", "user_id", row.UserID, "family_id", row.FamilyID)
		return nil, apierr.AuthReuse(fmt.Errorf("refresh token already used"))
	}
	if time.Now().After(row.ExpiresAt) {
		return nil, apierr.StaleToken(fmt.Errorf("refresh token expired"))
	}

	var pair *TokenPair
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if mErr := s.tokens.MarkRotated(dbc, row.ID); mErr != nil {
			return mErr
		}
		p, iErr := s.issueTokensTx(dbc, row.UserID, row.FamilyID)
		if iErr != nil {
			return iErr
		}
		pair = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout revokes the presented token's family. Unknown tokens are a no-op
// so logout is idempotent.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	row, err := s.tokens.GetByTokenHash(dbctx.Context{Ctx: ctx}, hashToken(refreshToken))
	if err != nil {
		return err
	}
	if row == nil {
		return nil
	}
	return s.tokens.RevokeFamily(dbctx.Context{Ctx: ctx}, row.FamilyID)
}

// LogoutAll revokes every session the user has.
func (s *Service) LogoutAll(ctx context.Context, userID uuid.UUID) error {
	return s.tokens.RevokeAllForUser(dbctx.Context{Ctx: ctx}, userID)
}

// PurgeExpired deletes refresh tokens past their expiry; run on a schedule.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpired(dbctx.Context{Ctx: ctx}, time.Now().UTC())
}

// ParseAccessToken validates the JWT and returns the subject user ID.
func (s *Service) ParseAccessToken(tokenString string) (uuid.UUID, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return uuid.Nil, apierr.Unauthorized(fmt.Errorf("invalid token: %w", err))
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return uuid.Nil, apierr.Unauthorized(fmt.Errorf("invalid token"))
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, apierr.Unauthorized(fmt.Errorf("invalid subject in token"))
	}
	return userID, nil
}

func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

func (s *Service) issueTokens(ctx context.Context, userID, familyID uuid.UUID) (*TokenPair, error) {
	return s.issueTokensTx(dbctx.Context{Ctx: ctx}, userID, familyID)
}

func (s *Service) issueTokensTx(dbc dbctx.Context, userID, familyID uuid.UUID) (*TokenPair, error) {
	access, err := s.signAccessToken(userID)
	if err != nil {
		return nil, err
	}
	refresh, err := randtoken.New(refreshTokenBytes)
	if err != nil {
		return nil, err
	}
	if _, err := s.tokens.Create(dbc, []*types.RefreshToken{{
		UserID:    userID,
		FamilyID:  familyID,
		TokenHash: hashToken(refresh),
		ExpiresAt: time.Now().Add(s.refreshTTL),
	}}); err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *Service) signAccessToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
