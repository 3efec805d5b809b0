package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"collabdeck/pkg/logger"
)

var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// UserRepository resolves users against the identity provider's auth.users
// table.
type UserRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	email = normalizeEmail(email)
	var u User
	err := r.DB.QueryRowContext(ctx, "SELECT id, email FROM auth.users WHERE lower(email) = $1", email).Scan(&u.ID, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get user by email %s: %v", email, err)
		return nil, err
	}
	return &u, nil
}

// MemoryDirectory is the in-process directory used with in-memory storage.
type MemoryDirectory struct {
	mu      sync.RWMutex
	byEmail map[string]User
}

func NewMemoryDirectory(users ...User) *MemoryDirectory {
	d := &MemoryDirectory{byEmail: make(map[string]User)}
	for _, u := range users {
		d.Add(u)
	}
	return d
}

func (d *MemoryDirectory) Add(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byEmail[normalizeEmail(u.Email)] = u
}

func (d *MemoryDirectory) FindByEmail(ctx context.Context, email string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
