package schema

import (
	"encoding/json"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/cache"
	"github.com/ppiankov/aem/internal/project"
	"github.com/ppiankov/aem/internal/store"
)

// Registry resolves the effective outcome schema of a project.
// Decoded documents are cached by path and modification time.
type Registry struct {
	globalPath string
	cache      *cache.MemoryCache
	logger     *zap.Logger
}

// NewRegistry creates a registry backed by the global schema at globalPath
func NewRegistry(globalPath string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		globalPath: globalPath,
		cache:      cache.NewMemoryCache(10*time.Minute, 10*time.Minute),
		logger:     logger,
	}
}

// GlobalPath returns the location of the process-wide schema
func (r *Registry) GlobalPath() string {
	return r.globalPath
}

// EnsureGlobal writes the default schema to the global path when absent
func (r *Registry) EnsureGlobal() error {
	if r.globalPath == "" || store.Exists(r.globalPath) {
		return nil
	}
	r.logger.Info("writing default outcome schema", zap.String("path", r.globalPath))
	return store.WriteJSON(r.globalPath, Default())
}

// EnsureProject guarantees contracts/claim_outcome_schema.json exists for the
// project. The global schema is copied when useGlobal is set, else the default.
func (r *Registry) EnsureProject(l project.Layout, useGlobal bool) error {
	if store.Exists(l.Schema()) {
		return nil
	}

	s := Default()
	if useGlobal {
		if err := r.EnsureGlobal(); err != nil {
			return err
		}
		if global, err := r.read(r.globalPath); err == nil && global != nil {
			s = global
		} else if err != nil {
			r.logger.Warn("global schema unreadable, using default", zap.Error(err))
		}
	}
	return store.WriteJSON(l.Schema(), s)
}

// LoadForProject returns the project override, else the global schema, else the default
func (r *Registry) LoadForProject(l project.Layout) (*Schema, error) {
	for _, path := range []string{l.Schema(), r.globalPath} {
		if path == "" {
			continue
		}
		s, err := r.read(path)
		if err != nil {
			return nil, err
		}
		if s != nil {
			return s, nil
		}
	}
	return Default(), nil
}

// read decodes a schema file. Missing and malformed files return (nil, nil).
func (r *Registry) read(path string) (*Schema, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &store.StorageError{Op: "stat", Path: path, Err: err}
	}

	key := cache.Key("schema", path, info.ModTime().UTC().Format(time.RFC3339Nano))
	data, ok := r.cache.Get(key)
	if !ok {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, &store.StorageError{Op: "read", Path: path, Err: err}
		}
		_ = r.cache.Set(key, data, 0)
	}

	s := Default()
	if err := json.Unmarshal(data, s); err != nil {
		r.logger.Warn("ignoring malformed outcome schema", zap.String("path", path), zap.Error(err))
		return nil, nil
	}
	s.normalize()
	return s, nil
}
