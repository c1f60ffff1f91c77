// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

package nightsync

import (
	"net/http"
	"testing"
	"time"
)

func TestJWTAuth_GenerateAndValidate(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret", time.Hour)

	token, err := jwtAuth.GenerateToken("alice")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if token == "" {
		t.Error("Generated token should not be empty")
	}

	subject, err := jwtAuth.ValidateToken(token)
	if err != nil {
		t.Fatalf("Failed to validate generated token: %v", err)
	}
	if subject != "alice" {
		t.Errorf("Expected subject alice, got %s", subject)
	}
}

func TestJWTAuth_ValidateToken_WrongSecret(t *testing.T) {
	jwtAuth1 := NewJWTAuth("secret-1", time.Hour)
	jwtAuth2 := NewJWTAuth("secret-2", time.Hour)

	token, err := jwtAuth1.GenerateToken("alice")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	if _, err := jwtAuth2.ValidateToken(token); err == nil {
		t.Error("Expected validation to fail with different secret")
	}
}

func TestJWTAuth_ValidateToken_Expired(t *testing.T) {
	jwtAuth := &JWTAuth{secret: []byte("test-secret"), lifetime: time.Millisecond}

	token, err := jwtAuth.GenerateToken("alice")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	if _, err := jwtAuth.ValidateToken(token); err == nil {
		t.Error("Expected validation to fail for expired token")
	}
}

func TestJWTAuth_ValidateToken_Malformed(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret", time.Hour)

	testCases := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"invalid format", "not.a.jwt"},
		{"random string", "random-string"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := jwtAuth.ValidateToken(tc.token); err == nil {
				t.Errorf("Expected validation to fail for %s", tc.name)
			}
		})
	}
}

func TestJWTAuth_SubjectFromRequest(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret", time.Hour)
	token, err := jwtAuth.GenerateToken("bob")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, "/get/sugar/last", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	subject, err := jwtAuth.SubjectFromRequest(req)
	if err != nil {
		t.Fatalf("SubjectFromRequest failed: %v", err)
	}
	if subject != "bob" {
		t.Errorf("Expected subject bob, got %s", subject)
	}
}

func TestJWTAuth_SubjectFromRequest_Missing(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret", time.Hour)

	req, _ := http.NewRequest(http.MethodGet, "/get/sugar/last", nil)
	if _, err := jwtAuth.SubjectFromRequest(req); err == nil {
		t.Error("Expected error for missing Authorization header")
	}

	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if _, err := jwtAuth.SubjectFromRequest(req); err == nil {
		t.Error("Expected error for non-bearer Authorization header")
	}
}

func TestNewJWTAuth_DefaultLifetime(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret", 0)
	if jwtAuth.Lifetime() != 30*time.Minute {
		t.Errorf("Expected 30m default lifetime, got %v", jwtAuth.Lifetime())
	}
}
