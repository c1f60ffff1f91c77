// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

package nightsync

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// UserRegistry authenticates facade callers against a JSON users file of
// {"username": "<bcrypt hash>"} pairs.
type UserRegistry struct {
	path string

	mu    sync.RWMutex
	users map[string]string
}

// LoadUserRegistry reads the users file. A missing file is a configuration
// error; the facade cannot issue tokens without it.
func LoadUserRegistry(path string) (*UserRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	users := make(map[string]string)
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("parse users file: %w", err)
	}
	return &UserRegistry{path: path, users: users}, nil
}

// Authenticate verifies a username/password pair.
func (u *UserRegistry) Authenticate(username, password string) bool {
	u.mu.RLock()
	hash, ok := u.users[username]
	u.mu.RUnlock()
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// AddUser registers a new user and persists the registry. Returns false
// when the login is already taken.
func (u *UserRegistry) AddUser(username, password string) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, exists := u.users[username]; exists {
		return false, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	u.users[username] = string(hash)

	data, err := json.MarshalIndent(u.users, "", "  ")
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(u.path, data, 0o600); err != nil {
		return false, fmt.Errorf("save users file: %w", err)
	}
	return true, nil
}
