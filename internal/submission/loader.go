// Package submission checks work submissions against JSON schemas stored in
// the database.
package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/qri-io/jsonschema"

	"github.com/garnizeh/cleardeal/internal/models"
	"github.com/garnizeh/cleardeal/pkg/repository"
)

// ErrInvalid wraps every schema violation returned by Validate.
var ErrInvalid = errors.New("submission does not match schema")

// Loader loads and caches compiled JSON schemas from the repository.
type Loader struct {
	repo  repository.SchemaRepo
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

func NewLoader(ctx context.Context, r repository.SchemaRepo) (*Loader, error) {
	l := &Loader{
		repo:  r,
		cache: make(map[string]*jsonschema.Schema),
	}
	if err := l.Reload(ctx); err != nil {
		return nil, err
	}

	return l, nil
}

// GetSchema returns a compiled schema for a version.
func (l *Loader) GetSchema(version string) (*jsonschema.Schema, bool) {
	l.mu.RLock()
	s, ok := l.cache[version]
	l.mu.RUnlock()

	return s, ok
}

// Versions lists the cached schema versions.
func (l *Loader) Versions() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.cache))
	for v := range l.cache {
		out = append(out, v)
	}
	return out
}

// Reload loads all schemas from the DB and compiles them. On error the
// previous cache stays in place.
func (l *Loader) Reload(ctx context.Context) error {
	rows, err := l.repo.ListSchemas(ctx)
	if err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}

	newCache := make(map[string]*jsonschema.Schema, len(rows))
	for _, r := range rows {
		rs := &jsonschema.Schema{}
		if err := json.Unmarshal([]byte(r.SchemaJSON), rs); err != nil {
			return fmt.Errorf("compile schema %s: %w", r.Version, err)
		}

		newCache[r.Version] = rs
	}

	l.mu.Lock()
	l.cache = newCache
	l.mu.Unlock()
	return nil
}

// Validator checks submissions against one schema version held by a Loader.
type Validator struct {
	loader  *Loader
	version string
}

func NewValidator(loader *Loader, version string) *Validator {
	return &Validator{loader: loader, version: version}
}

func (v *Validator) Version() string { return v.version }

// Validate returns an error wrapping ErrInvalid when s violates the schema.
func (v *Validator) Validate(ctx context.Context, s models.Submission) error {
	schema, ok := v.loader.GetSchema(v.version)
	if !ok || schema == nil {
		return fmt.Errorf("no submission schema found for version %s", v.version)
	}

	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	verrs, err := schema.ValidateBytes(ctx, b)
	if err != nil {
		return fmt.Errorf("schema validate error: %w", err)
	}
	if len(verrs) > 0 {
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			if e.PropertyPath != "" && e.PropertyPath != "/" {
				msgs = append(msgs, e.PropertyPath+": "+e.Message)
				continue
			}
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
	}
	return nil
}
