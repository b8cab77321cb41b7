package storage

import (
	"context"
	"fmt"
	"sync"

	"token_auth_service/internal/common"
	"token_auth_service/internal/models"

	"github.com/gofrs/uuid"
)

// MemoryStorage keeps accounts in process. The email check and the insert
// happen under one lock, which plays the role of the unique constraint.
type MemoryStorage struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]models.Account
	byEmail map[string]uuid.UUID
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		byID:    map[uuid.UUID]models.Account{},
		byEmail: map[string]uuid.UUID{},
	}
}

func (m *MemoryStorage) CreateAccount(_ context.Context, account models.Account) error {
	const op = "storage.CreateAccount"

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[account.Email]; ok {
		return fmt.Errorf("%s: %w", op, common.ErrEmailTaken)
	}
	if _, ok := m.byID[account.ID]; ok {
		return fmt.Errorf("%s: duplicate id %s", op, account.ID)
	}

	m.byID[account.ID] = cloneAccount(account)
	m.byEmail[account.Email] = account.ID

	return nil
}

func (m *MemoryStorage) GetAccountByEmail(_ context.Context, email string) (models.Account, error) {
	const op = "storage.GetAccountByEmail"

	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[email]
	if !ok {
		return models.Account{}, fmt.Errorf("%s: %w", op, common.ErrNotFound)
	}

	return cloneAccount(m.byID[id]), nil
}

func (m *MemoryStorage) GetAccountByID(_ context.Context, id uuid.UUID) (models.Account, error) {
	const op = "storage.GetAccountByID"

	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.byID[id]
	if !ok {
		return models.Account{}, fmt.Errorf("%s: %w", op, common.ErrNotFound)
	}

	return cloneAccount(account), nil
}

func (m *MemoryStorage) UpdateRefreshTokenHash(_ context.Context, id uuid.UUID, hash *string) error {
	const op = "storage.UpdateRefreshTokenHash"

	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, common.ErrNotFound)
	}

	account.RefreshTokenHash = cloneHash(hash)
	m.byID[id] = account

	return nil
}

func (m *MemoryStorage) Ping(context.Context) error { return nil }

func (m *MemoryStorage) Close() {}

// callers must not be able to reach stored hashes through returned pointers
func cloneAccount(a models.Account) models.Account {
	a.RefreshTokenHash = cloneHash(a.RefreshTokenHash)
	return a
}

func cloneHash(hash *string) *string {
	if hash == nil {
		return nil
	}
	h := *hash
	return &h
}
