// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package agent

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haianhng/skymirror/internal/atproto"
	"github.com/haianhng/skymirror/internal/core/account"
	"github.com/haianhng/skymirror/internal/core/block"
	"github.com/haianhng/skymirror/internal/platform/apperr"
)

// buildBlockCommit assembles a decoded commit event carrying one block
// creation, going through CBOR so the content links decode the same way
// stream frames do.
func buildBlockCommit(t *testing.T, seq int64, repo, subject string) *atproto.CommitEvent {
	t.Helper()

	recordBytes, err := cbor.Marshal(map[string]any{
		"$type":     atproto.CollectionBlock,
		"subject":   subject,
		"createdAt": "2026-08-24T00:00:00.000Z",
	})
	require.NoError(t, err)

	digest := sha256.Sum256(recordBytes)
	identifier := append([]byte{0x12, 0x20}, digest[:]...)

	headerBytes, err := cbor.Marshal(map[string]any{"version": 1, "roots": []any{}})
	require.NoError(t, err)

	var archive []byte
	archive = binary.AppendUvarint(archive, uint64(len(headerBytes)))
	archive = append(archive, headerBytes...)
	section := append(append([]byte{}, identifier...), recordBytes...)
	archive = binary.AppendUvarint(archive, uint64(len(section)))
	archive = append(archive, section...)

	payload, err := cbor.Marshal(map[string]any{
		"seq":    seq,
		"repo":   repo,
		"rev":    "3krev",
		"tooBig": false,
		"blocks": archive,
		"ops": []any{
			map[string]any{
				"action": "create",
				"path":   "app.bsky.graph.block/3kxyz",
				"cid":    cbor.Tag{Number: 42, Content: append([]byte{0x00}, identifier...)},
			},
		},
		"time": "2026-08-24T00:00:01.000Z",
	})
	require.NoError(t, err)

	commit := &atproto.CommitEvent{}
	require.NoError(t, cbor.Unmarshal(payload, commit))
	return commit
}

// scriptedStream feeds a fixed frame sequence, then fails the way a dropped
// connection does.
type scriptedStream struct {
	frames []*atproto.Frame
	index  int
}

func (stream *scriptedStream) Next(context.Context) (*atproto.Frame, error) {
	if stream.index >= len(stream.frames) {
		return nil, apperr.Transient("stream closed", nil)
	}
	frame := stream.frames[stream.index]
	stream.index++
	return frame, nil
}

func (stream *scriptedStream) Close() error { return nil }

func TestConsumeOnce_CheckpointsAfterCommit(t *testing.T) {
	row := &account.Account{ID: 2, Handle: "watcher.example", DID: "did:plc:watcher"}
	fixture := newTestFixture(row, "did:plc:watcher")
	ctx := context.Background()

	commit := buildBlockCommit(t, 42, "did:plc:watcher", "did:plc:spammer")
	fixture.agent.subscribe = func(context.Context, string, int64) (commitStream, error) {
		return &scriptedStream{frames: []*atproto.Frame{
			{Type: atproto.FrameCommit, Commit: commit},
		}}, nil
	}

	err := fixture.agent.consumeOnce(ctx)
	require.Error(t, err)

	// The record was ingested and the cursor landed on the commit's seq.
	assert.NotNil(t, fixture.blocks.get("did:plc:spammer", 2, block.DirectionBlocking))
	seq, found, loadErr := fixture.cursors.Load(ctx, "did:plc:watcher")
	require.NoError(t, loadErr)
	assert.True(t, found)
	assert.Equal(t, int64(42), seq)
}

func TestConsumeOnce_CheckpointsUnknownFrameKinds(t *testing.T) {
	row := &account.Account{ID: 2, Handle: "watcher.example", DID: "did:plc:watcher"}
	fixture := newTestFixture(row, "did:plc:watcher")
	ctx := context.Background()

	fixture.agent.subscribe = func(context.Context, string, int64) (commitStream, error) {
		return &scriptedStream{frames: []*atproto.Frame{
			{Type: "#identity", Other: &atproto.SeqEvent{Seq: 7}},
		}}, nil
	}

	err := fixture.agent.consumeOnce(ctx)
	require.Error(t, err)

	seq, found, loadErr := fixture.cursors.Load(ctx, "did:plc:watcher")
	require.NoError(t, loadErr)
	assert.True(t, found)
	assert.Equal(t, int64(7), seq)
}

func TestConsumeOnce_ResumesFromCheckpoint(t *testing.T) {
	row := &account.Account{ID: 2, Handle: "watcher.example", DID: "did:plc:watcher"}
	fixture := newTestFixture(row, "did:plc:watcher")
	ctx := context.Background()

	require.NoError(t, fixture.cursors.Save(ctx, "did:plc:watcher", 100))

	dialled := atproto.CursorLiveEdge
	fixture.agent.subscribe = func(_ context.Context, _ string, cursor int64) (commitStream, error) {
		dialled = cursor
		return &scriptedStream{}, nil
	}

	_ = fixture.agent.consumeOnce(ctx)

	assert.Equal(t, int64(100), dialled)
}

func TestHandleCommit_IngestsCreatedBlock(t *testing.T) {
	row := &account.Account{ID: 2, Handle: "watcher.example", DID: "did:plc:watcher"}
	fixture := newTestFixture(row, "did:plc:watcher")

	commit := buildBlockCommit(t, 42, "did:plc:watcher", "did:plc:spammer")
	fixture.agent.handleCommit(context.Background(), commit)

	stored := fixture.blocks.get("did:plc:spammer", 2, block.DirectionBlocking)
	require.NotNil(t, stored)
	assert.Equal(t, "firehose seq 42", stored.Reason)
	assert.Equal(t, block.DirectionBlocking, stored.Direction)
}

func TestHandleCommit_IgnoresForeignRepo(t *testing.T) {
	row := &account.Account{ID: 2, Handle: "watcher.example", DID: "did:plc:watcher"}
	fixture := newTestFixture(row, "did:plc:watcher")

	commit := buildBlockCommit(t, 43, "did:plc:someone-else", "did:plc:spammer")
	fixture.agent.handleCommit(context.Background(), commit)

	assert.Zero(t, fixture.blocks.count())
}

func TestHandleCommit_SuppressesSelfBlock(t *testing.T) {
	row := &account.Account{ID: 2, Handle: "watcher.example", DID: "did:plc:watcher"}
	fixture := newTestFixture(row, "did:plc:watcher", "did:plc:primary")

	// One managed account blocking another must never produce a row.
	commit := buildBlockCommit(t, 44, "did:plc:watcher", "did:plc:primary")
	fixture.agent.handleCommit(context.Background(), commit)

	assert.Zero(t, fixture.blocks.count())
}

func TestHandleCommit_SkipsUnreadableBundle(t *testing.T) {
	row := &account.Account{ID: 2, Handle: "watcher.example", DID: "did:plc:watcher"}
	fixture := newTestFixture(row, "did:plc:watcher")

	commit := buildBlockCommit(t, 45, "did:plc:watcher", "did:plc:spammer")
	commit.Blocks = []byte{0x01, 0x02}

	// A poisoned commit is logged and skipped, never fatal.
	fixture.agent.handleCommit(context.Background(), commit)

	assert.Zero(t, fixture.blocks.count())
}

func TestHandleCommit_SkipsOversizedCommit(t *testing.T) {
	row := &account.Account{ID: 2, Handle: "watcher.example", DID: "did:plc:watcher"}
	fixture := newTestFixture(row, "did:plc:watcher")

	commit := buildBlockCommit(t, 46, "did:plc:watcher", "did:plc:spammer")
	commit.TooBig = true
	commit.Blocks = nil

	fixture.agent.handleCommit(context.Background(), commit)

	assert.Zero(t, fixture.blocks.count())
}

func TestHandleCommit_PrimaryAddsListItem(t *testing.T) {
	row := &account.Account{ID: 1, Handle: "primary.example", DID: "did:plc:primary", IsPrimary: true}
	fixture := newTestFixture(row, "did:plc:primary")
	fixture.agent.listURI = "at://did:plc:primary/app.bsky.graph.list/3klist"

	commit := buildBlockCommit(t, 47, "did:plc:primary", "did:plc:spammer")
	fixture.agent.handleCommit(context.Background(), commit)

	items := fixture.client.createdIn(atproto.CollectionListItem)
	require.Len(t, items, 1)

	record, ok := items[0].record.(atproto.ListItemRecord)
	require.True(t, ok)
	assert.Equal(t, "did:plc:spammer", record.Subject)
	assert.Equal(t, fixture.agent.listURI, record.List)
}

func TestHandleFrame_ErrorFrameIsTerminal(t *testing.T) {
	row := &account.Account{ID: 2, Handle: "watcher.example", DID: "did:plc:watcher"}
	fixture := newTestFixture(row, "did:plc:watcher")

	err := fixture.agent.handleFrame(context.Background(), &atproto.Frame{
		Type: atproto.FrameError,
		Err:  &atproto.ErrorEvent{Error: "FutureCursor"},
	})

	assert.Error(t, err)
}

func TestHandleFrame_UnknownFrameIsSkipped(t *testing.T) {
	row := &account.Account{ID: 2, Handle: "watcher.example", DID: "did:plc:watcher"}
	fixture := newTestFixture(row, "did:plc:watcher")

	err := fixture.agent.handleFrame(context.Background(), &atproto.Frame{Type: "#identity"})

	assert.NoError(t, err)
}

func TestCursorStore_Monotonic(t *testing.T) {
	store := newMemoryCursorStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "did:plc:watcher", 100))
	require.NoError(t, store.Save(ctx, "did:plc:watcher", 42))

	seq, found, err := store.Load(ctx, "did:plc:watcher")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(100), seq)
}
