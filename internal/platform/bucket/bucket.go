package bucket

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/surfsense/surfsense-backend/internal/pkg/envutil"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

// Category selects the key prefix an object is stored under.
type Category string

const (
	CategoryAvatar  Category = "avatar"
	CategoryPodcast Category = "podcast"
	CategoryUpload  Category = "upload"
)

// Service is the object store for generated avatars, rendered podcast
// audio, and raw file uploads. Backed by one GCS bucket; the category
// becomes the top-level key prefix.
type Service interface {
	Upload(ctx context.Context, category Category, key string, contentType string, r io.Reader) error
	Download(ctx context.Context, category Category, key string) (io.ReadCloser, error)
	// OpenRange returns a reader over [offset, offset+length); length < 0
	// reads to the end. Used for audio range requests.
	OpenRange(ctx context.Context, category Category, key string, offset, length int64) (io.ReadCloser, error)
	Attrs(ctx context.Context, category Category, key string) (*ObjectAttrs, error)
	Delete(ctx context.Context, category Category, key string) error
	PublicURL(category Category, key string) string
}

type ObjectAttrs struct {
	Size        int64
	ContentType string
	Updated     time.Time
}

type service struct {
	log     *logger.Logger
	client  *storage.Client
	bucket  string
	baseURL string
}

func NewService(log *logger.Logger) (Service, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	name := strings.TrimSpace(envutil.String("GCS_BUCKET", ""))
	if name == "" {
		return nil, fmt.Errorf("missing GCS_BUCKET")
	}

	var opts []option.ClientOption
	if creds := strings.TrimSpace(envutil.String("GCS_CREDENTIALS_FILE", "")); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	if host := strings.TrimSpace(envutil.String("STORAGE_EMULATOR_HOST", "")); host != "" {
		opts = append(opts, option.WithEndpoint("http://"+strings.TrimPrefix(host, "http://")+"/storage/v1/"), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	baseURL := strings.TrimRight(envutil.String("GCS_PUBLIC_BASE_URL", "https://storage.googleapis.com"), "/")

	svc := &service{
		log:     log.With("service", "BucketService"),
		client:  client,
		bucket:  name,
		baseURL: baseURL,
	}
	svc.log.Info("Object storage initialized", "bucket", name)
	return svc, nil
}

func (s *service) objectKey(category Category, key string) string {
	return string(category) + "/" + strings.TrimLeft(key, "/")
}

func (s *service) Upload(ctx context.Context, category Category, key string, contentType string, r io.Reader) error {
	if key == "" {
		return fmt.Errorf("object key required")
	}
	w := s.client.Bucket(s.bucket).Object(s.objectKey(category, key)).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return w.Close()
}

func (s *service) Download(ctx context.Context, category Category, key string) (io.ReadCloser, error) {
	if key == "" {
		return nil, fmt.Errorf("object key required")
	}
	return s.client.Bucket(s.bucket).Object(s.objectKey(category, key)).NewReader(ctx)
}

func (s *service) OpenRange(ctx context.Context, category Category, key string, offset, length int64) (io.ReadCloser, error) {
	if key == "" {
		return nil, fmt.Errorf("object key required")
	}
	return s.client.Bucket(s.bucket).Object(s.objectKey(category, key)).NewRangeReader(ctx, offset, length)
}

func (s *service) Attrs(ctx context.Context, category Category, key string) (*ObjectAttrs, error) {
	if key == "" {
		return nil, fmt.Errorf("object key required")
	}
	attrs, err := s.client.Bucket(s.bucket).Object(s.objectKey(category, key)).Attrs(ctx)
	if err != nil {
		return nil, err
	}
	return &ObjectAttrs{
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Updated:     attrs.Updated,
	}, nil
}

func (s *service) Delete(ctx context.Context, category Category, key string) error {
	if key == "" {
		return fmt.Errorf("object key required")
	}
	err := s.client.Bucket(s.bucket).Object(s.objectKey(category, key)).Delete(ctx)
	if err == storage.ErrObjectNotExist {
		return nil
	}
	return err
}

func (s *service) PublicURL(category Category, key string) string {
	return s.baseURL + "/" + s.bucket + "/" + s.objectKey(category, key)
}
