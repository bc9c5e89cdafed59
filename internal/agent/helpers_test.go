// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/haianhng/skymirror/internal/atproto"
	"github.com/haianhng/skymirror/internal/core/account"
	"github.com/haianhng/skymirror/internal/core/block"
	"github.com/haianhng/skymirror/internal/core/modlist"
	"github.com/haianhng/skymirror/internal/governor"
	"github.com/haianhng/skymirror/internal/platform/apperr"
)

// # In-Memory Stores

type blockKey struct {
	did       string
	source    int64
	direction block.Direction
}

// memoryBlockStore mirrors the Postgres store's semantics, including the
// self-block whitelist, for tests.
type memoryBlockStore struct {
	mu          sync.Mutex
	rows        map[blockKey]*block.Block
	managedDIDs map[string]bool
	nextID      int64
}

func newMemoryBlockStore(managedDIDs ...string) *memoryBlockStore {
	managed := make(map[string]bool, len(managedDIDs))
	for _, did := range managedDIDs {
		managed[did] = true
	}
	return &memoryBlockStore{
		rows:        make(map[blockKey]*block.Block),
		managedDIDs: managed,
	}
}

func (store *memoryBlockStore) Add(_ context.Context, params block.AddParams) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	// Whitelist: managed subjects never become rows.
	if store.managedDIDs[params.DID] {
		return nil
	}

	key := blockKey{did: params.DID, source: params.SourceAccountID, direction: params.Direction}
	if existing, found := store.rows[key]; found {
		existing.LastSeen = time.Now()
		if params.Handle != "" {
			existing.Handle = params.Handle
		}
		return nil
	}

	store.nextID++
	store.rows[key] = &block.Block{
		ID:              store.nextID,
		DID:             params.DID,
		Handle:          params.Handle,
		Reason:          params.Reason,
		SourceAccountID: params.SourceAccountID,
		Direction:       params.Direction,
		FirstSeen:       time.Now(),
		LastSeen:        time.Now(),
	}
	return nil
}

func (store *memoryBlockStore) RemoveStale(_ context.Context, sourceAccountID int64, direction block.Direction, currentDIDs []string) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	current := make(map[string]bool, len(currentDIDs))
	for _, did := range currentDIDs {
		current[did] = true
	}

	var pruned int64
	for key := range store.rows {
		if key.source == sourceAccountID && key.direction == direction && !current[key.did] {
			delete(store.rows, key)
			pruned++
		}
	}
	return pruned, nil
}

func (store *memoryBlockStore) UnsyncedForPrimary(_ context.Context, primaryAccountID int64) ([]*block.UnsyncedBlock, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var result []*block.UnsyncedBlock
	for key, row := range store.rows {
		if key.direction != block.DirectionBlocking || key.source == primaryAccountID || row.SyncedByPrimary {
			continue
		}
		_, primaryHas := store.rows[blockKey{did: key.did, source: primaryAccountID, direction: block.DirectionBlocking}]
		result = append(result, &block.UnsyncedBlock{
			Block:                   *row,
			AlreadyBlockedByPrimary: primaryHas,
		})
	}
	return result, nil
}

func (store *memoryBlockStore) MarkSynced(_ context.Context, blockID int64) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, row := range store.rows {
		if row.ID == blockID {
			row.SyncedByPrimary = true
			return nil
		}
	}
	return apperr.NotFound("Block row")
}

func (store *memoryBlockStore) DesiredListDIDs(_ context.Context) ([]string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	seen := make(map[string]bool)
	var dids []string
	for key := range store.rows {
		if store.managedDIDs[key.did] || seen[key.did] {
			continue
		}
		seen[key.did] = true
		dids = append(dids, key.did)
	}
	return dids, nil
}

func (store *memoryBlockStore) get(did string, source int64, direction block.Direction) *block.Block {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.rows[blockKey{did: did, source: source, direction: direction}]
}

func (store *memoryBlockStore) count() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.rows)
}

// memoryCursorStore keeps checkpoints in a map with GREATEST semantics.
type memoryCursorStore struct {
	mu   sync.Mutex
	seqs map[string]int64
}

func newMemoryCursorStore() *memoryCursorStore {
	return &memoryCursorStore{seqs: make(map[string]int64)}
}

func (store *memoryCursorStore) Save(_ context.Context, did string, seq int64) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if existing, found := store.seqs[did]; !found || seq > existing {
		store.seqs[did] = seq
	}
	return nil
}

func (store *memoryCursorStore) Load(_ context.Context, did string) (int64, bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	seq, found := store.seqs[did]
	return seq, found, nil
}

// memoryAccountStore covers Register for DID resolution tests.
type memoryAccountStore struct {
	mu     sync.Mutex
	rows   map[string]*account.Account
	nextID int64
}

func newMemoryAccountStore() *memoryAccountStore {
	return &memoryAccountStore{rows: make(map[string]*account.Account)}
}

func (store *memoryAccountStore) Register(_ context.Context, handle, did string, isPrimary bool) (*account.Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if existing, found := store.rows[handle]; found {
		if existing.HasPlaceholderDID() && did != "" && !(&account.Account{DID: did}).HasPlaceholderDID() {
			existing.DID = did
		}
		existing.IsPrimary = isPrimary
		copied := *existing
		return &copied, nil
	}

	store.nextID++
	row := &account.Account{ID: store.nextID, Handle: handle, DID: did, IsPrimary: isPrimary}
	store.rows[handle] = row
	copied := *row
	return &copied, nil
}

func (store *memoryAccountStore) GetPrimary(_ context.Context) (*account.Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, row := range store.rows {
		if row.IsPrimary {
			copied := *row
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("Primary account")
}

func (store *memoryAccountStore) List(_ context.Context) ([]*account.Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var rows []*account.Account
	for _, row := range store.rows {
		copied := *row
		rows = append(rows, &copied)
	}
	return rows, nil
}

// memoryListStore keeps moderation-list registrations in a map.
type memoryListStore struct {
	mu   sync.Mutex
	rows map[string]*modlist.List
}

func newMemoryListStore() *memoryListStore {
	return &memoryListStore{rows: make(map[string]*modlist.List)}
}

func (store *memoryListStore) Register(_ context.Context, uri, cid, ownerDID, name string) (*modlist.List, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	row := &modlist.List{URI: uri, CID: cid, OwnerDID: ownerDID, Name: name, CreatedAt: time.Now()}
	store.rows[uri] = row
	copied := *row
	return &copied, nil
}

func (store *memoryListStore) GetByOwner(_ context.Context, ownerDID string) (*modlist.List, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, row := range store.rows {
		if row.OwnerDID == ownerDID {
			copied := *row
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("Moderation list")
}

func (store *memoryListStore) DeleteByURI(_ context.Context, uri string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	delete(store.rows, uri)
	return nil
}

func (store *memoryListStore) size() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.rows)
}

// # Fake Network Client

type createdRecord struct {
	repo       string
	collection string
	record     any
}

type deletedRecord struct {
	repo       string
	collection string
	rkey       string
}

// fakeClient is a scriptable in-memory stand-in for the XRPC client.
type fakeClient struct {
	mu sync.Mutex

	blocks    []atproto.BlockedView
	lists     []atproto.ListView
	listItems map[string][]atproto.ListItemView

	created []createdRecord
	deleted []deletedRecord

	// createErrs queues one error per CreateRecord call (nil = success).
	createErrs []error

	nextRef int
}

func newFakeClient() *fakeClient {
	return &fakeClient{listItems: make(map[string][]atproto.ListItemView)}
}

func (client *fakeClient) Login(context.Context, string, string) (*atproto.Session, error) {
	return &atproto.Session{DID: "did:plc:resolved"}, nil
}

func (client *fakeClient) RefreshSession(context.Context, string) (*atproto.Session, error) {
	return nil, apperr.Permanent("not scripted", nil)
}

func (client *fakeClient) Resume(*atproto.Session) {}

func (client *fakeClient) CreateRecord(_ context.Context, repo, collection string, record any) (*atproto.RecordRef, error) {
	client.mu.Lock()
	defer client.mu.Unlock()

	if len(client.createErrs) > 0 {
		err := client.createErrs[0]
		client.createErrs = client.createErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	client.created = append(client.created, createdRecord{repo: repo, collection: collection, record: record})
	client.nextRef++
	return &atproto.RecordRef{
		URI: fmt.Sprintf("at://%s/%s/3kfake%d", repo, collection, client.nextRef),
		CID: fmt.Sprintf("bafyfake%d", client.nextRef),
	}, nil
}

func (client *fakeClient) PutRecord(_ context.Context, repo, collection, rkey string, record any) (*atproto.RecordRef, error) {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.created = append(client.created, createdRecord{repo: repo, collection: collection, record: record})
	return &atproto.RecordRef{URI: fmt.Sprintf("at://%s/%s/%s", repo, collection, rkey)}, nil
}

func (client *fakeClient) DeleteRecord(_ context.Context, repo, collection, rkey string) error {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.deleted = append(client.deleted, deletedRecord{repo: repo, collection: collection, rkey: rkey})
	return nil
}

func (client *fakeClient) GetLists(_ context.Context, _ string, _ int, _ string) (*atproto.ListsPage, error) {
	client.mu.Lock()
	defer client.mu.Unlock()
	return &atproto.ListsPage{Lists: append([]atproto.ListView(nil), client.lists...)}, nil
}

func (client *fakeClient) GetList(_ context.Context, listURI string, _ int, _ string) (*atproto.ListPage, error) {
	client.mu.Lock()
	defer client.mu.Unlock()
	return &atproto.ListPage{Items: append([]atproto.ListItemView(nil), client.listItems[listURI]...)}, nil
}

func (client *fakeClient) GetBlocks(_ context.Context, _ int, _ string) (*atproto.BlocksPage, error) {
	client.mu.Lock()
	defer client.mu.Unlock()
	return &atproto.BlocksPage{Blocks: append([]atproto.BlockedView(nil), client.blocks...)}, nil
}

func (client *fakeClient) createdIn(collection string) []createdRecord {
	client.mu.Lock()
	defer client.mu.Unlock()
	var matched []createdRecord
	for _, record := range client.created {
		if record.collection == collection {
			matched = append(matched, record)
		}
	}
	return matched
}

// # Wiring

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testGovernor() *governor.Governor {
	return governor.New(governor.Options{
		MinInterval:    time.Microsecond,
		WindowLimit:    1 << 20,
		WindowLength:   time.Minute,
		RetryCount:     0,
		RetryBaseDelay: time.Millisecond,
	}, discardLogger())
}

type testFixture struct {
	agent    *Agent
	client   *fakeClient
	blocks   *memoryBlockStore
	cursors  *memoryCursorStore
	lists    *memoryListStore
	accounts *memoryAccountStore
}

func newTestFixture(row *account.Account, managedDIDs ...string) *testFixture {
	client := newFakeClient()
	blocks := newMemoryBlockStore(managedDIDs...)
	cursors := newMemoryCursorStore()
	lists := newMemoryListStore()
	accounts := newMemoryAccountStore()

	deps := Deps{
		Accounts: accounts,
		Blocks:   blocks,
		Cursors:  cursors,
		Lists:    lists,
		Governor: testGovernor(),
		Logger:   discardLogger(),
	}

	options := Options{
		ListName:            "Aggregate blocks",
		ListDescription:     "test list",
		SyncInterval:        time.Minute,
		FullSyncInterval:    time.Hour,
		PublishBatchSize:    50,
		PublishBatchPause:   time.Millisecond,
		PublishPagePause:    time.Microsecond,
		PublishAdditiveOnly: false,
	}

	return &testFixture{
		agent:    New(deps, options, row, "hunter2", client),
		client:   client,
		blocks:   blocks,
		cursors:  cursors,
		lists:    lists,
		accounts: accounts,
	}
}
