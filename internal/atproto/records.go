// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package atproto

import (
	"fmt"
	"strings"
	"time"
)

// # Collections

const (
	// CollectionBlock holds one record per account the author blocks.
	CollectionBlock = "app.bsky.graph.block"

	// CollectionList holds list declarations (including moderation lists).
	CollectionList = "app.bsky.graph.list"

	// CollectionListItem holds one record per (list, subject) membership.
	CollectionListItem = "app.bsky.graph.listitem"
)

// ListPurposeModeration is the declared purpose of a subscribable block list.
const ListPurposeModeration = "app.bsky.graph.defs#modlist"

// TimeFormat is the canonical createdAt timestamp layout for records.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// # Record Schemas
//
// These structs are encoded to JSON on the write path (XRPC) and decoded
// from CBOR on the read path (firehose commit bundles). The field names are
// fixed by the network's lexicons.

// BlockRecord expresses that its author blocks Subject.
type BlockRecord struct {
	Type      string `json:"$type" cbor:"$type"`
	Subject   string `json:"subject" cbor:"subject"`
	CreatedAt string `json:"createdAt" cbor:"createdAt"`
}

// NewBlockRecord returns a block record for the given subject DID.
func NewBlockRecord(subject string) BlockRecord {
	return BlockRecord{
		Type:      CollectionBlock,
		Subject:   subject,
		CreatedAt: time.Now().UTC().Format(TimeFormat),
	}
}

// ListRecord declares a list and its purpose.
type ListRecord struct {
	Type        string `json:"$type" cbor:"$type"`
	Purpose     string `json:"purpose" cbor:"purpose"`
	Name        string `json:"name" cbor:"name"`
	Description string `json:"description,omitempty" cbor:"description,omitempty"`
	CreatedAt   string `json:"createdAt" cbor:"createdAt"`
}

// NewModerationListRecord returns a moderation-list declaration.
func NewModerationListRecord(name, description string) ListRecord {
	return ListRecord{
		Type:        CollectionList,
		Purpose:     ListPurposeModeration,
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC().Format(TimeFormat),
	}
}

// ListItemRecord places Subject on List.
type ListItemRecord struct {
	Type      string `json:"$type" cbor:"$type"`
	Subject   string `json:"subject" cbor:"subject"`
	List      string `json:"list" cbor:"list"`
	CreatedAt string `json:"createdAt" cbor:"createdAt"`
}

// NewListItemRecord returns a list-item record binding subject to listURI.
func NewListItemRecord(subject, listURI string) ListItemRecord {
	return ListItemRecord{
		Type:      CollectionListItem,
		Subject:   subject,
		List:      listURI,
		CreatedAt: time.Now().UTC().Format(TimeFormat),
	}
}

// # AT URIs

// ParseATURI splits an at:// URI into repo DID, collection, and record key.
//
// Shape: at://did:plc:xxx/app.bsky.graph.listitem/3kabc...
func ParseATURI(uri string) (repo, collection, rkey string, err error) {
	trimmed := strings.TrimPrefix(uri, "at://")
	if trimmed == uri {
		return "", "", "", fmt.Errorf("atproto: not an at:// URI: %q", uri)
	}

	parts := strings.SplitN(trimmed, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("atproto: malformed at:// URI: %q", uri)
	}

	return parts[0], parts[1], parts[2], nil
}

// RecordKeyFromURI extracts the rkey segment of an at:// URI.
func RecordKeyFromURI(uri string) (string, error) {
	_, _, rkey, err := ParseATURI(uri)
	return rkey, err
}
