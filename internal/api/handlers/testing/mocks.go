// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package testing

import (
	"context"
	"sync"

	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/services/coordinator"
)

// MockStore is an in-memory settings store. The Err fields force the
// matching operation to fail.
type MockStore struct {
	mu       sync.Mutex
	Services models.Settings

	ListErr   error
	GetErr    error
	SaveErr   error
	DeleteErr error
}

func NewMockStore(services ...models.ServiceSettings) *MockStore {
	m := &MockStore{Services: models.Settings{}}
	for _, svc := range services {
		m.Services[svc.Kind] = svc
	}
	return m
}

// ListArrServices implements the database method
func (m *MockStore) ListArrServices(ctx context.Context) ([]models.ServiceSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []models.ServiceSettings
	for _, kind := range models.Kinds {
		if svc, ok := m.Services[kind]; ok {
			out = append(out, svc)
		}
	}
	return out, nil
}

// GetArrService implements the database method
func (m *MockStore) GetArrService(ctx context.Context, kind models.Kind) (*models.ServiceSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetErr != nil {
		return nil, m.GetErr
	}
	svc, ok := m.Services[kind]
	if !ok {
		return nil, nil
	}
	return &svc, nil
}

// SaveArrService implements the database method
func (m *MockStore) SaveArrService(ctx context.Context, svc *models.ServiceSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.Services[svc.Kind] = *svc
	return nil
}

// DeleteArrService implements the database method
func (m *MockStore) DeleteArrService(ctx context.Context, kind models.Kind) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DeleteErr != nil {
		return false, m.DeleteErr
	}
	_, ok := m.Services[kind]
	delete(m.Services, kind)
	return ok, nil
}

// LoadSettings implements the database method
func (m *MockStore) LoadSettings(ctx context.Context) (models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(models.Settings, len(m.Services))
	for k, v := range m.Services {
		out[k] = v
	}
	return out, nil
}

// MockReloader records the settings revisions it was given.
type MockReloader struct {
	mu        sync.Mutex
	Revisions []models.Settings
	refreshed chan context.Context
}

func NewMockReloader() *MockReloader {
	return &MockReloader{refreshed: make(chan context.Context, 8)}
}

func (r *MockReloader) Reload(settings models.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Revisions = append(r.Revisions, settings)
	return nil
}

func (r *MockReloader) Refresh(ctx context.Context) (*coordinator.Snapshot, error) {
	select {
	case r.refreshed <- ctx:
	default:
	}
	return nil, nil
}

// Refreshed receives the context of every Refresh call.
func (r *MockReloader) Refreshed() <-chan context.Context {
	return r.refreshed
}

// Last returns the most recent settings revision, or nil.
func (r *MockReloader) Last() models.Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Revisions) == 0 {
		return nil
	}
	return r.Revisions[len(r.Revisions)-1]
}
