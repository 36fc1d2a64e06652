package connectors

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	docdomain "github.com/surfsense/surfsense-backend/internal/domain/documents"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

// localFileAdapter indexes markdown, text, and HTML files under a root
// directory on the server. Remote id is the path relative to the root, so
// moves re-ingest as new documents while edits update in place.
type localFileAdapter struct {
	log *logger.Logger
}

func NewLocalFileAdapter(log *logger.Logger) Adapter {
	return &localFileAdapter{log: log.With("connector", docdomain.TypeFile)}
}

func (a *localFileAdapter) Type() string { return docdomain.TypeFile }

var localFileExts = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".html":     true,
	".htm":      true,
}

// localFileMaxSize skips anything over 10 MiB.
const localFileMaxSize = 10 << 20

func (a *localFileAdapter) root(creds *Credentials) (string, error) {
	root := creds.extra("root")
	if root == "" {
		return "", fmt.Errorf("localfile connector needs a root directory")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root %q: %w", root, err)
	}
	return abs, nil
}

func (a *localFileAdapter) Validate(ctx context.Context, creds *Credentials) error {
	root, err := a.root(creds)
	if err != nil {
		return err
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root %q is not a directory", root)
	}
	return nil
}

func (a *localFileAdapter) Discover(ctx context.Context, creds *Credentials, since, until time.Time) (Iterator, error) {
	root, err := a.root(creds)
	if err != nil {
		return nil, err
	}

	var items []*RawItem
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !localFileExts[ext] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		mod := info.ModTime()
		if !mod.After(since) || mod.After(until) || info.Size() > localFileMaxSize {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		items = append(items, &RawItem{
			RemoteID:   filepath.ToSlash(rel),
			Title:      strings.TrimSuffix(d.Name(), ext),
			Body:       string(raw),
			BodyIsHTML: ext == ".html" || ext == ".htm",
			SourceTime: mod,
			Metadata: map[string]any{
				"path": filepath.ToSlash(rel),
				"ext":  ext,
			},
		})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return newSliceIterator(items), nil
}

func (a *localFileAdapter) Normalize(item *RawItem) (*NormalizedDoc, error) {
	return normalize(a.Type(), item)
}
