package connectors

import (
	"fmt"
	"sort"
	"sync"

	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

// Registry maps connector_type to its adapter. Populated once at startup;
// reads are concurrent from workers and handlers.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: map[string]Adapter{}}
}

func (r *Registry) Register(a Adapter) error {
	if a == nil || a.Type() == "" {
		return fmt.Errorf("adapter with empty type")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.adapters[a.Type()]; dup {
		return fmt.Errorf("duplicate adapter for %q", a.Type())
	}
	r.adapters[a.Type()] = a
	return nil
}

func (r *Registry) Get(connectorType string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[connectorType]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for %q", connectorType)
	}
	return a, nil
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for t := range r.adapters {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// NewDefaultRegistry registers every built-in adapter.
func NewDefaultRegistry(log *logger.Logger) (*Registry, error) {
	r := NewRegistry()
	all := []Adapter{
		NewSlackAdapter(log),
		NewGithubAdapter(log),
		NewNotionAdapter(log),
		NewJiraAdapter(log),
		NewLinearAdapter(log),
		NewConfluenceAdapter(log),
		NewDiscordAdapter(log),
		NewGmailAdapter(log),
		NewGoogleDriveAdapter(log),
		NewGoogleCalendarAdapter(log),
		NewClickupAdapter(log),
		NewAirtableAdapter(log),
		NewZulipAdapter(log),
		NewWebcrawlerAdapter(log),
		NewLocalFileAdapter(log),
	}
	for _, a := range all {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}
