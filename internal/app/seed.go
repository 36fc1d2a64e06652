package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/randtoken"
)

const (
	seedEmail     = "seed@localhost"
	seedSpaceName = "Seed Library"
)

// SeedDocs pushes every markdown file in dir through the full document
// pipeline under a dedicated seed account. Meant for demos and local
// testing, not production data loads.
func (a *App) SeedDocs(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%w: read seed dir: %v", ErrConfig, err)
	}

	userID, spaceID, err := a.seedAccount(ctx)
	if err != nil {
		return err
	}

	var loaded int
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		title := strings.TrimSuffix(entry.Name(), ".md")

		doc, err := a.Services.Docs.CreateNote(ctx, userID, spaceID, title, string(raw))
		if err != nil {
			return fmt.Errorf("create %s: %w", title, err)
		}
		// Run the pipeline inline so seeding works without a worker
		// process; the queued job is a no-op replay on an already
		// processed document.
		if err := a.Services.Processor.ProcessDocument(ctx, doc.ID); err != nil {
			return fmt.Errorf("process %s: %w", title, err)
		}
		loaded++
		a.Log.Info("seeded document", "title", title)
	}

	a.Log.Info("seed complete", "documents", loaded, "space_id", spaceID)
	return nil
}

// seedAccount finds or creates the seed user and their space.
func (a *App) seedAccount(ctx context.Context) (uuid.UUID, uuid.UUID, error) {
	dbc := dbctx.Context{Ctx: ctx}
	existing, err := a.Repos.Users.GetByEmails(dbc, []string{seedEmail})
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}

	var userID uuid.UUID
	if len(existing) > 0 {
		userID = existing[0].ID
	} else {
		password, err := randtoken.New(16)
		if err != nil {
			return uuid.Nil, uuid.Nil, err
		}
		user, err := a.Services.Auth.Register(ctx, seedEmail, password, "Seed")
		if err != nil {
			return uuid.Nil, uuid.Nil, err
		}
		userID = user.ID
	}

	spaces, err := a.Services.Spaces.ListForUser(ctx, userID)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	for _, sp := range spaces {
		if sp.Name == seedSpaceName {
			return userID, sp.ID, nil
		}
	}
	space, err := a.Services.Spaces.CreateSpace(ctx, userID, seedSpaceName, "")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return userID, space.ID, nil
}
