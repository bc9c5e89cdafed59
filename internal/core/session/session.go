// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

/*
Package session persists upstream credential sets across restarts and decides
when to reuse, refresh, or re-login.

The AT Protocol service budgets roughly ten full logins per account per day,
so the [Manager] works hard to avoid them: a stored token pair is reused as
long as the access token is fresh, refreshed while the refresh token is still
trusted, and only replaced by a full login when both are stale.

Three interchangeable [Store] backends exist (Postgres, per-handle JSON files,
Redis with TTL); the deployment picks one via configuration.
*/
package session

import "time"

// Session is a persisted upstream credential set for one account.
//
// AccessDate is when the access token was issued or last refreshed;
// RefreshDate is when the refresh token was issued (full login time).
type Session struct {
	Handle      string    `json:"handle"`
	DID         string    `json:"did"`
	AccessJwt   string    `json:"access_jwt"`
	RefreshJwt  string    `json:"refresh_jwt"`
	AccessDate  time.Time `json:"access_date"`
	RefreshDate time.Time `json:"refresh_date"`
}
