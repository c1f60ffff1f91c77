// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
)

type contextKey string

const subjectKey contextKey = "subject"

// SetSubject stores the authenticated token subject in the context.
func SetSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// GetSubject retrieves the authenticated token subject from the context.
func GetSubject(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectKey).(string)
	return subject, ok
}
