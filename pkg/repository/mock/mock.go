package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/garnizeh/cleardeal/internal/models"
	"github.com/garnizeh/cleardeal/pkg/repository"
)

// Test helpers and mocks
type Mocks struct {
	UserRepo   *mockUserRepo
	SchemaRepo *mockSchemaRepo
}

func NewMocks() *Mocks {
	return &Mocks{
		UserRepo:   &mockUserRepo{},
		SchemaRepo: &mockSchemaRepo{},
	}
}

var (
	_ repository.UserRepo   = (*mockUserRepo)(nil)
	_ repository.SchemaRepo = (*mockSchemaRepo)(nil)
)

type mockUserRepo struct {
	mu        sync.Mutex
	Stored    []models.User
	CreateErr error
}

func (m *mockUserRepo) CreateUser(ctx context.Context, u *models.User) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return 0, m.CreateErr
	}
	for _, s := range m.Stored {
		if strings.EqualFold(s.Email, u.Email) || strings.EqualFold(s.Address, u.Address) {
			return 0, repository.ErrDuplicate
		}
	}
	stored := *u
	stored.ID = int64(len(m.Stored) + 1)
	m.Stored = append(m.Stored, stored)
	return stored.ID, nil
}

func (m *mockUserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Stored {
		if strings.EqualFold(m.Stored[i].Email, email) {
			u := m.Stored[i]
			return &u, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) GetUserByAddress(ctx context.Context, address string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Stored {
		if strings.EqualFold(m.Stored[i].Address, address) {
			u := m.Stored[i]
			return &u, nil
		}
	}
	return nil, nil
}

type mockSchemaRepo struct {
	mu      sync.Mutex
	Schemas []models.Schema
	ListErr error
}

func (m *mockSchemaRepo) CreateSchema(ctx context.Context, version, description, schemaJSON string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.Schemas {
		if s.Version == version {
			return 0, repository.ErrDuplicate
		}
	}
	s := models.Schema{ID: int64(len(m.Schemas) + 1), Version: version, Description: description, SchemaJSON: schemaJSON}
	m.Schemas = append(m.Schemas, s)
	return s.ID, nil
}

func (m *mockSchemaRepo) GetSchemaByVersion(ctx context.Context, version string) (*models.Schema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Schemas {
		if m.Schemas[i].Version == version {
			s := m.Schemas[i]
			return &s, nil
		}
	}
	return nil, nil
}

func (m *mockSchemaRepo) ListSchemas(ctx context.Context) ([]models.Schema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]models.Schema, len(m.Schemas))
	copy(out, m.Schemas)
	return out, nil
}

func (m *mockSchemaRepo) DeleteSchema(ctx context.Context, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Schemas {
		if m.Schemas[i].Version == version {
			m.Schemas = append(m.Schemas[:i], m.Schemas[i+1:]...)
			return nil
		}
	}
	return nil
}
