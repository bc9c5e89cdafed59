// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package atproto

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// # Content Links
//
// CBOR-encoded records reference each other through tag 42: a byte string of
// the raw content identifier prefixed with a 0x00 multibase marker. No IPLD
// stack is carried here: the engine only ever needs to match an op's link
// against the commit's block bundle, so links are kept as opaque bytes.

// CIDLink is a content identifier as embedded in stream CBOR.
type CIDLink struct {
	raw []byte
}

// Defined reports whether the link carries a content identifier at all.
// Delete ops have a null cid.
func (link CIDLink) Defined() bool { return len(link.raw) > 0 }

// Key returns the byte-string map key for bundle lookups.
func (link CIDLink) Key() string { return string(link.raw) }

// String renders the raw identifier bytes for logging.
func (link CIDLink) String() string {
	if !link.Defined() {
		return "<nil>"
	}
	return fmt.Sprintf("%x", link.raw)
}

// UnmarshalCBOR decodes tag 42 (content link) into raw identifier bytes.
func (link *CIDLink) UnmarshalCBOR(data []byte) error {
	// Null links appear on delete ops.
	if len(data) == 1 && (data[0] == 0xf6 || data[0] == 0xf7) {
		link.raw = nil
		return nil
	}

	var tag cbor.Tag
	if err := streamDecMode.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("atproto: failed to decode content link: %w", err)
	}
	if tag.Number != 42 {
		return fmt.Errorf("atproto: unexpected tag %d for content link", tag.Number)
	}

	encoded, ok := tag.Content.([]byte)
	if !ok || len(encoded) < 2 {
		return fmt.Errorf("atproto: malformed content link payload")
	}

	// Strip the 0x00 multibase prefix; the remainder is the raw identifier.
	if encoded[0] != 0x00 {
		return fmt.Errorf("atproto: unexpected multibase prefix 0x%02x in content link", encoded[0])
	}

	link.raw = append([]byte(nil), encoded[1:]...)
	return nil
}

// # CAR Bundles
//
// Commit frames carry their touched records as a CARv1 archive: a varint-
// prefixed CBOR header followed by varint-prefixed (identifier || data)
// sections.

// BlockBundle maps content identifiers (as byte-string keys) to record bytes.
type BlockBundle map[string][]byte

// Lookup returns the record bytes for the given link, if bundled.
func (bundle BlockBundle) Lookup(link CIDLink) ([]byte, bool) {
	data, found := bundle[link.Key()]
	return data, found
}

// ReadBundle parses a CARv1 archive into a lookup table.
//
// Malformed sections abort the parse; the caller treats that as a poisoned
// commit, logs, and moves on.
func ReadBundle(data []byte) (BlockBundle, error) {
	reader := bytes.NewReader(data)

	// Header: varint length + CBOR {version, roots}. Only the framing
	// matters here; roots are not needed for op lookups.
	headerLen, err := binary.ReadUvarint(reader)
	if err != nil {
		return nil, fmt.Errorf("atproto: failed to read archive header length: %w", err)
	}
	if headerLen == 0 || headerLen > uint64(reader.Len()) {
		return nil, fmt.Errorf("atproto: header length %d exceeds remaining archive", headerLen)
	}

	header := make([]byte, headerLen)
	if _, err := reader.Read(header); err != nil {
		return nil, fmt.Errorf("atproto: failed to read archive header: %w", err)
	}

	var headerDoc struct {
		Version uint64 `cbor:"version"`
	}
	if err := streamDecMode.Unmarshal(header, &headerDoc); err != nil {
		return nil, fmt.Errorf("atproto: failed to decode archive header: %w", err)
	}
	if headerDoc.Version != 1 {
		return nil, fmt.Errorf("atproto: unsupported archive version %d", headerDoc.Version)
	}

	bundle := make(BlockBundle)

	for reader.Len() > 0 {
		sectionLen, err := binary.ReadUvarint(reader)
		if err != nil {
			return nil, fmt.Errorf("atproto: failed to read section length: %w", err)
		}
		if sectionLen == 0 || sectionLen > uint64(reader.Len()) {
			return nil, fmt.Errorf("atproto: section length %d exceeds remaining archive", sectionLen)
		}

		section := make([]byte, sectionLen)
		if _, err := reader.Read(section); err != nil {
			return nil, fmt.Errorf("atproto: failed to read section: %w", err)
		}

		idLen, err := identifierLength(section)
		if err != nil {
			return nil, err
		}

		bundle[string(section[:idLen])] = section[idLen:]
	}

	return bundle, nil
}

// identifierLength determines where the content identifier ends and the
// record data begins inside a section.
//
// Two shapes exist: the legacy v0 form (0x12 0x20 + 32-byte digest) and the
// v1 form (version varint, codec varint, then a multihash of code varint,
// length varint, digest).
func identifierLength(section []byte) (int, error) {
	if len(section) >= 2 && section[0] == 0x12 && section[1] == 0x20 {
		// v0: fixed 34 bytes.
		if len(section) < 34 {
			return 0, fmt.Errorf("atproto: truncated v0 identifier")
		}
		return 34, nil
	}

	reader := bytes.NewReader(section)

	// version, codec
	for i := 0; i < 2; i++ {
		if _, err := binary.ReadUvarint(reader); err != nil {
			return 0, fmt.Errorf("atproto: truncated identifier prefix: %w", err)
		}
	}

	// multihash: code, digest length, digest
	if _, err := binary.ReadUvarint(reader); err != nil {
		return 0, fmt.Errorf("atproto: truncated multihash code: %w", err)
	}
	digestLen, err := binary.ReadUvarint(reader)
	if err != nil {
		return 0, fmt.Errorf("atproto: truncated multihash length: %w", err)
	}

	consumed := len(section) - reader.Len()
	end := consumed + int(digestLen)
	if end > len(section) {
		return 0, fmt.Errorf("atproto: truncated multihash digest")
	}

	return end, nil
}

// DecodeBlockRecord decodes a bundled block record.
func DecodeBlockRecord(data []byte) (*BlockRecord, error) {
	var record BlockRecord
	if err := streamDecMode.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("atproto: failed to decode block record: %w", err)
	}
	return &record, nil
}
