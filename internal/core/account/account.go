// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

// Package account defines the managed-account roster: the set of identities
// Skymirror operates on behalf of. Exactly one account is the primary; it
// owns the published moderation list.
package account

import "time"

// PlaceholderDIDPrefix marks accounts registered from configuration before
// their first successful login resolved the real DID.
const PlaceholderDIDPrefix = "pending:"

// Account is one managed account.
type Account struct {
	ID        int64
	Handle    string
	DID       string
	IsPrimary bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPlaceholderDID reports whether the account still awaits DID resolution.
func (a *Account) HasPlaceholderDID() bool {
	return len(a.DID) >= len(PlaceholderDIDPrefix) && a.DID[:len(PlaceholderDIDPrefix)] == PlaceholderDIDPrefix
}

// Placeholder derives the provisional DID for a not-yet-resolved handle.
func Placeholder(handle string) string {
	return PlaceholderDIDPrefix + handle
}
