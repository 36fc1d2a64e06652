package handlers

import "github.com/surfsense/surfsense-backend/internal/jobs/runtime"

// RegisterAll wires every handler into the worker registry.
func RegisterAll(registry *runtime.Registry, hs ...runtime.Handler) error {
	for _, h := range hs {
		if err := registry.Register(h); err != nil {
			return err
		}
	}
	return nil
}
