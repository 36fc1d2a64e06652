package avatar

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"os"
	"strings"
	"time"
	"unicode"

	_ "image/jpeg"
	_ "image/png"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/google/uuid"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"

	userrepo "github.com/surfsense/surfsense-backend/internal/data/repos/user"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/envutil"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/platform/bucket"
)

const avatarSize = 512

// Default palette; a user's color is a stable hash of their ID so the
// generated avatar never changes between regenerations.
var palette = []color.NRGBA{
	{R: 0x1A, G: 0x73, B: 0xE8, A: 0xFF},
	{R: 0xD9, G: 0x30, B: 0x25, A: 0xFF},
	{R: 0x18, G: 0x80, B: 0x38, A: 0xFF},
	{R: 0xF2, G: 0x99, B: 0x00, A: 0xFF},
	{R: 0x67, G: 0x3A, B: 0xB7, A: 0xFF},
	{R: 0x00, G: 0x83, B: 0x8F, A: 0xFF},
	{R: 0xC2, G: 0x18, B: 0x5B, A: 0xFF},
	{R: 0x5D, G: 0x40, B: 0x37, A: 0xFF},
}

// Service renders initial-letter avatars and stores them in the object
// bucket. Uploaded photos are cropped, resized, and circle-clipped.
type Service struct {
	log   *logger.Logger
	users userrepo.UserRepo
	store bucket.Service
	face  font.Face
}

func NewService(log *logger.Logger, users userrepo.UserRepo, store bucket.Service) (*Service, error) {
	fontPath := envutil.String("AVATAR_FONT_PATH", "")
	if fontPath == "" {
		return nil, fmt.Errorf("AVATAR_FONT_PATH is required")
	}
	face, err := loadFontFace(fontPath, 206)
	if err != nil {
		return nil, fmt.Errorf("load avatar font: %w", err)
	}
	return &Service{
		log:   log.With("service", "AvatarService"),
		users: users,
		store: store,
		face:  face,
	}, nil
}

func loadFontFace(path string, points float64) (font.Face, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := truetype.Parse(raw)
	if err != nil {
		return nil, err
	}
	return truetype.NewFace(f, &truetype.Options{Size: points}), nil
}

// GenerateAndStore renders the initials avatar for the user and points
// avatar_url at the uploaded object. Keys are versioned so caches never
// serve a stale image after regeneration.
func (s *Service) GenerateAndStore(ctx context.Context, userID uuid.UUID, displayName, email string) (string, error) {
	png, err := s.render(userID, initialsFor(displayName, email))
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s/%d.png", userID, time.Now().UnixNano())
	if err := s.store.Upload(ctx, bucket.CategoryAvatar, key, "image/png", bytes.NewReader(png)); err != nil {
		return "", fmt.Errorf("upload avatar: %w", err)
	}
	url := s.store.PublicURL(bucket.CategoryAvatar, key)
	if err := s.users.UpdateFields(dbctx.Context{Ctx: ctx}, userID, map[string]interface{}{
		"avatar_url": url,
	}); err != nil {
		return "", err
	}
	return url, nil
}

// StoreUploaded replaces the user's avatar with an uploaded photo.
func (s *Service) StoreUploaded(ctx context.Context, userID uuid.UUID, raw []byte) (string, error) {
	png, err := processUploaded(raw, avatarSize)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s/%d.png", userID, time.Now().UnixNano())
	if err := s.store.Upload(ctx, bucket.CategoryAvatar, key, "image/png", bytes.NewReader(png)); err != nil {
		return "", fmt.Errorf("upload avatar: %w", err)
	}
	url := s.store.PublicURL(bucket.CategoryAvatar, key)
	if err := s.users.UpdateFields(dbctx.Context{Ctx: ctx}, userID, map[string]interface{}{
		"avatar_url": url,
	}); err != nil {
		return "", err
	}
	return url, nil
}

func (s *Service) render(userID uuid.UUID, initials string) ([]byte, error) {
	dc := gg.NewContext(avatarSize, avatarSize)

	dc.DrawCircle(avatarSize/2, avatarSize/2, avatarSize/2)
	dc.Clip()

	dc.SetColor(colorFor(userID))
	dc.DrawRectangle(0, 0, avatarSize, avatarSize)
	dc.Fill()

	dc.SetFontFace(s.face)
	tw, th := dc.MeasureString(initials)
	dc.SetColor(color.White)
	dc.DrawString(initials, avatarSize/2-tw/2+5, avatarSize/2+th/2-10)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode avatar png: %w", err)
	}
	return buf.Bytes(), nil
}

func colorFor(userID uuid.UUID) color.NRGBA {
	h := fnv.New32a()
	h.Write(userID[:])
	return palette[int(h.Sum32())%len(palette)]
}

// initialsFor takes the first letters of the first two display-name words,
// falling back to the first letter of the email.
func initialsFor(displayName, email string) string {
	words := strings.Fields(displayName)
	var b strings.Builder
	for _, w := range words {
		for _, r := range w {
			b.WriteRune(unicode.ToUpper(r))
			break
		}
		if b.Len() >= 2 {
			break
		}
	}
	if b.Len() > 0 {
		return b.String()
	}
	for _, r := range email {
		return string(unicode.ToUpper(r))
	}
	return "?"
}

func processUploaded(raw []byte, size int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode avatar image: %w", err)
	}

	// Center-crop to a square before scaling.
	b := img.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	cropped := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(cropped, cropped.Bounds(), img, image.Point{X: x0, Y: y0}, draw.Src)

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), cropped, cropped.Bounds(), draw.Over, nil)

	dc := gg.NewContext(size, size)
	dc.DrawCircle(float64(size)/2, float64(size)/2, float64(size)/2)
	dc.Clip()
	dc.DrawImage(dst, 0, 0)

	var out bytes.Buffer
	if err := dc.EncodePNG(&out); err != nil {
		return nil, fmt.Errorf("encode avatar png: %w", err)
	}
	return out.Bytes(), nil
}
