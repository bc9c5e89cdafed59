// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

// Package sec provides token inspection helpers for upstream credentials.
//
// # Architecture
//
// Skymirror does not mint its own tokens; it holds access/refresh JWTs issued
// by the AT Protocol service. This package isolates the JWT handling so the
// session layer can reason about token freshness without trusting only the
// locally recorded issue timestamps.
package sec

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry extracts the 'exp' claim from an upstream-issued JWT.
//
// The signature is NOT verified; the signing key belongs to the upstream
// service and verification happens there. The claim is only used as a local
// scheduling hint for refreshing before rejection.
func TokenExpiry(token string) (time.Time, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("sec: failed to parse token: %w", err)
	}

	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return time.Time{}, fmt.Errorf("sec: token has no usable exp claim: %w", err)
	}

	return expiry.Time, nil
}

// ExpiresWithin reports whether the token's exp claim falls inside the
// given window from now. Tokens that cannot be parsed are treated as
// expiring, forcing a refresh.
func ExpiresWithin(token string, window time.Duration) bool {
	expiry, err := TokenExpiry(token)
	if err != nil {
		return true
	}
	return time.Until(expiry) < window
}
