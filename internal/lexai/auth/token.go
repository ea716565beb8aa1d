// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package auth verifies bearer tokens for the HTTP API and the WebSocket
// handshake. Token issuance lives in the external identity collaborator;
// this package only checks signatures, expiry, and the revocation
// blacklist shared through the key-value store.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/kv"
	"github.com/web-dev-vishal/LexAI-sub000/internal/lexai/model"
)

// Claims is the verified identity attached to a connection or request.
type Claims struct {
	UserID    string
	TenantID  string
	Role      string
	Plan      string
	JTI       string
	ExpiresAt time.Time
}

// IsAdmin reports whether the connection may join the admin room.
func (c *Claims) IsAdmin() bool { return c.Role == "admin" }

// Verifier checks HS256 bearer tokens against the shared secret and the
// revocation list.
type Verifier struct {
	secret      []byte
	revocations *kv.Revocations
}

// NewVerifier builds a verifier. revocations may be nil in tests that do
// not exercise the blacklist.
func NewVerifier(secret []byte, revocations *kv.Revocations) *Verifier {
	return &Verifier{secret: secret, revocations: revocations}
}

// Verify parses and validates a token, then consults the revocation
// blacklist. Every failure maps to model.ErrForbidden so the transport
// layer never leaks verification detail.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	tok, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("token rejected: %v: %w", err, model.ErrForbidden)
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("token claims unreadable: %w", model.ErrForbidden)
	}

	claims := &Claims{
		UserID:   stringClaim(mc, "sub"),
		TenantID: stringClaim(mc, "tenantId"),
		Role:     stringClaim(mc, "role"),
		Plan:     stringClaim(mc, "plan"),
		JTI:      stringClaim(mc, "jti"),
	}
	if claims.UserID == "" || claims.TenantID == "" {
		return nil, fmt.Errorf("token missing identity claims: %w", model.ErrForbidden)
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	if v.revocations != nil && claims.JTI != "" {
		revoked, err := v.revocations.IsRevoked(ctx, claims.JTI)
		if err != nil {
			return nil, fmt.Errorf("revocation check: %v: %w", err, model.ErrInfrastructure)
		}
		if revoked {
			return nil, fmt.Errorf("token revoked: %w", model.ErrForbidden)
		}
	}
	return claims, nil
}

func stringClaim(mc jwt.MapClaims, key string) string {
	s, _ := mc[key].(string)
	return s
}
