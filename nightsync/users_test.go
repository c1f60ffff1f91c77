// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

package nightsync

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func writeUsersFile(t *testing.T, users map[string]string) string {
	t.Helper()
	hashed := make(map[string]string, len(users))
	for name, password := range users {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		require.NoError(t, err)
		hashed[name] = string(hash)
	}
	data, err := json.Marshal(hashed)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestUserRegistry_Authenticate(t *testing.T) {
	path := writeUsersFile(t, map[string]string{"alice": "correct-horse"})

	registry, err := LoadUserRegistry(path)
	require.NoError(t, err)

	require.True(t, registry.Authenticate("alice", "correct-horse"))
	require.False(t, registry.Authenticate("alice", "wrong-password"))
	require.False(t, registry.Authenticate("mallory", "correct-horse"))
}

func TestUserRegistry_AddUser(t *testing.T) {
	path := writeUsersFile(t, map[string]string{"alice": "pw"})

	registry, err := LoadUserRegistry(path)
	require.NoError(t, err)

	created, err := registry.AddUser("bob", "bobs-password")
	require.NoError(t, err)
	require.True(t, created)
	require.True(t, registry.Authenticate("bob", "bobs-password"))

	// Duplicate login is rejected without error.
	created, err = registry.AddUser("bob", "other-password")
	require.NoError(t, err)
	require.False(t, created)

	// The new user must survive a reload from disk.
	reloaded, err := LoadUserRegistry(path)
	require.NoError(t, err)
	require.True(t, reloaded.Authenticate("bob", "bobs-password"))
}

func TestLoadUserRegistry_Missing(t *testing.T) {
	_, err := LoadUserRegistry(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}
