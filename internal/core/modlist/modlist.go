// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

// Package modlist tracks the published moderation list's metadata: which
// at:// URI is canonical for the primary account, and the name/description
// it was declared with.
package modlist

import "time"

// List is the stored metadata of one moderation list.
type List struct {
	ID        int64
	URI       string
	CID       string
	OwnerDID  string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
