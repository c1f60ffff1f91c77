// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

package nightsync

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTAuth issues and verifies the facade's bearer tokens. Verification
// checks signature and expiry only; there is no revocation list.
type JWTAuth struct {
	secret   []byte
	lifetime time.Duration
}

// NewJWTAuth creates a JWT authenticator with the given token lifetime.
func NewJWTAuth(secret string, lifetime time.Duration) *JWTAuth {
	if lifetime <= 0 {
		lifetime = 30 * time.Minute
	}
	return &JWTAuth{secret: []byte(secret), lifetime: lifetime}
}

// Lifetime returns the configured token lifetime, used by clients to
// schedule proactive refresh.
func (j *JWTAuth) Lifetime() time.Duration { return j.lifetime }

// GenerateToken signs a token embedding the subject and an expiry.
func (j *JWTAuth) GenerateToken(username string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		Issuer:    "nightsync",
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(j.lifetime)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken verifies signature and expiry and returns the subject.
func (j *JWTAuth) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token claims")
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// SubjectFromRequest extracts and validates the bearer token of an HTTP
// request, returning the authenticated subject.
func (j *JWTAuth) SubjectFromRequest(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing Authorization header")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errors.New("Authorization header is not a bearer token")
	}
	return j.ValidateToken(strings.TrimPrefix(header, prefix))
}
