package submission_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/garnizeh/cleardeal/internal/models"
	"github.com/garnizeh/cleardeal/internal/submission"
	"github.com/garnizeh/cleardeal/pkg/repository"
)

// fakeSchemaRepo is a small in-memory implementation of repository.SchemaRepo for tests.
type fakeSchemaRepo struct {
	schemas map[string]models.Schema
	listErr error
}

func newFakeSchemaRepo() *fakeSchemaRepo {
	return &fakeSchemaRepo{schemas: make(map[string]models.Schema)}
}

func (f *fakeSchemaRepo) CreateSchema(ctx context.Context, version, description, schemaJSON string) (int64, error) {
	id := int64(len(f.schemas) + 1)
	f.schemas[version] = models.Schema{ID: id, Version: version, Description: description, SchemaJSON: schemaJSON}
	return id, nil
}

func (f *fakeSchemaRepo) GetSchemaByVersion(ctx context.Context, version string) (*models.Schema, error) {
	if s, ok := f.schemas[version]; ok {
		return &s, nil
	}
	return nil, nil
}

func (f *fakeSchemaRepo) ListSchemas(ctx context.Context) ([]models.Schema, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.Schema, 0, len(f.schemas))
	for _, s := range f.schemas {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSchemaRepo) DeleteSchema(ctx context.Context, version string) error {
	if _, ok := f.schemas[version]; !ok {
		return errors.New("not found")
	}
	delete(f.schemas, version)
	return nil
}

var _ repository.SchemaRepo = (*fakeSchemaRepo)(nil)

func seededRepo(t *testing.T) *fakeSchemaRepo {
	t.Helper()
	b, err := os.ReadFile("../../db/seed/submission_schema_v1.json")
	if err != nil {
		t.Fatalf("read seed schema: %v", err)
	}
	fr := newFakeSchemaRepo()
	if _, err := fr.CreateSchema(context.Background(), "v1", "seed", string(b)); err != nil {
		t.Fatalf("seed schema failed: %v", err)
	}
	return fr
}

func TestValidator_SeedSchema(t *testing.T) {
	l, err := submission.NewLoader(context.Background(), seededRepo(t))
	if err != nil {
		t.Fatalf("NewLoader error: %v", err)
	}
	v := submission.NewValidator(l, "v1")

	tests := []struct {
		name    string
		in      models.Submission
		wantErr bool
	}{
		{"link", models.Submission{Type: models.SubmissionLink, Content: "https://github.com/x/y", Description: "repo"}, false},
		{"file", models.Submission{Type: models.SubmissionFile, Content: "report.pdf"}, false},
		{"unknown type", models.Submission{Type: "video", Content: "x"}, true},
		{"empty content", models.Submission{Type: models.SubmissionLink, Content: ""}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(context.Background(), tt.in)
			if tt.wantErr {
				if !errors.Is(err, submission.ErrInvalid) {
					t.Fatalf("expected ErrInvalid, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidator_UnknownVersion(t *testing.T) {
	l, err := submission.NewLoader(context.Background(), newFakeSchemaRepo())
	if err != nil {
		t.Fatalf("NewLoader error: %v", err)
	}
	err = submission.NewValidator(l, "v9").Validate(context.Background(), models.Submission{Type: models.SubmissionFile, Content: "x"})
	if err == nil || errors.Is(err, submission.ErrInvalid) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLoader_ReloadKeepsCacheOnError(t *testing.T) {
	fr := seededRepo(t)
	l, err := submission.NewLoader(context.Background(), fr)
	if err != nil {
		t.Fatalf("NewLoader error: %v", err)
	}

	if _, err := fr.CreateSchema(context.Background(), "v2", "broken", `{"type": 12`); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := l.Reload(context.Background()); err == nil {
		t.Fatalf("expected compile error")
	}
	if _, ok := l.GetSchema("v1"); !ok {
		t.Fatalf("expected previous cache to survive a failed reload")
	}

	fr.listErr = errors.New("db down")
	if err := l.Reload(context.Background()); err == nil {
		t.Fatalf("expected list error")
	}
	if len(l.Versions()) != 1 {
		t.Fatalf("expected 1 cached version, got %v", l.Versions())
	}
}
