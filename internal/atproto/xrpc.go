// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package atproto

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// XRPC method identifiers used by the engine.
const (
	procCreateSession  = "com.atproto.server.createSession"
	procRefreshSession = "com.atproto.server.refreshSession"
	procCreateRecord   = "com.atproto.repo.createRecord"
	procPutRecord      = "com.atproto.repo.putRecord"
	procDeleteRecord   = "com.atproto.repo.deleteRecord"
	queryGetLists      = "app.bsky.graph.getLists"
	queryGetList       = "app.bsky.graph.getList"
	queryGetBlocks     = "app.bsky.graph.getBlocks"
)

const requestTimeout = 30 * time.Second

// XRPCClient implements [Client] over plain HTTP against a single service
// host. One instance serves one managed account.
//
// # Concurrency
//
// The session pair is guarded; the commit consumer and the reconciler of the
// same agent may issue calls concurrently after a mid-flight refresh.
type XRPCClient struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.RWMutex
	session Session
}

// NewXRPCClient creates an unauthenticated client for the given service base
// URL (e.g. https://bsky.social).
func NewXRPCClient(baseURL string) *XRPCClient {
	return &XRPCClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Session returns a copy of the currently installed session.
func (client *XRPCClient) Session() Session {
	client.mu.RLock()
	defer client.mu.RUnlock()
	return client.session
}

// Resume installs a previously persisted session without any network call.
func (client *XRPCClient) Resume(session *Session) {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.session = *session
}

// # Session Management

// Login performs a full credential login and installs the session.
func (client *XRPCClient) Login(ctx context.Context, handle, password string) (*Session, error) {
	input := map[string]string{"identifier": handle, "password": password}

	var output struct {
		DID        string `json:"did"`
		Handle     string `json:"handle"`
		AccessJwt  string `json:"accessJwt"`
		RefreshJwt string `json:"refreshJwt"`
	}

	if err := client.procedure(ctx, procCreateSession, "", input, &output); err != nil {
		return nil, err
	}

	session := Session{
		Handle:     output.Handle,
		DID:        output.DID,
		AccessJwt:  output.AccessJwt,
		RefreshJwt: output.RefreshJwt,
	}

	client.mu.Lock()
	client.session = session
	client.mu.Unlock()

	return &session, nil
}

// RefreshSession exchanges the refresh token for a fresh token pair.
func (client *XRPCClient) RefreshSession(ctx context.Context, refreshJwt string) (*Session, error) {
	var output struct {
		DID        string `json:"did"`
		Handle     string `json:"handle"`
		AccessJwt  string `json:"accessJwt"`
		RefreshJwt string `json:"refreshJwt"`
	}

	if err := client.procedure(ctx, procRefreshSession, refreshJwt, nil, &output); err != nil {
		return nil, err
	}

	session := Session{
		Handle:     output.Handle,
		DID:        output.DID,
		AccessJwt:  output.AccessJwt,
		RefreshJwt: output.RefreshJwt,
	}

	client.mu.Lock()
	client.session = session
	client.mu.Unlock()

	return &session, nil
}

// # Record Writes

// CreateRecord writes a new record into repo/collection.
func (client *XRPCClient) CreateRecord(ctx context.Context, repo, collection string, record any) (*RecordRef, error) {
	input := map[string]any{
		"repo":       repo,
		"collection": collection,
		"record":     record,
	}

	var output RecordRef
	if err := client.procedure(ctx, procCreateRecord, client.accessToken(), input, &output); err != nil {
		return nil, err
	}

	return &output, nil
}

// PutRecord writes a record at a known rkey.
func (client *XRPCClient) PutRecord(ctx context.Context, repo, collection, rkey string, record any) (*RecordRef, error) {
	input := map[string]any{
		"repo":       repo,
		"collection": collection,
		"rkey":       rkey,
		"record":     record,
	}

	var output RecordRef
	if err := client.procedure(ctx, procPutRecord, client.accessToken(), input, &output); err != nil {
		return nil, err
	}

	return &output, nil
}

// DeleteRecord removes the record at (repo, collection, rkey).
func (client *XRPCClient) DeleteRecord(ctx context.Context, repo, collection, rkey string) error {
	input := map[string]any{
		"repo":       repo,
		"collection": collection,
		"rkey":       rkey,
	}

	return client.procedure(ctx, procDeleteRecord, client.accessToken(), input, nil)
}

// # Graph Enumeration

// GetLists enumerates lists owned by actor.
func (client *XRPCClient) GetLists(ctx context.Context, actor string, limit int, cursor string) (*ListsPage, error) {
	params := url.Values{}
	params.Set("actor", actor)
	params.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var output struct {
		Cursor string `json:"cursor"`
		Lists  []struct {
			URI       string    `json:"uri"`
			CID       string    `json:"cid"`
			Name      string    `json:"name"`
			Purpose   string    `json:"purpose"`
			IndexedAt time.Time `json:"indexedAt"`
		} `json:"lists"`
	}

	if err := client.query(ctx, queryGetLists, params, &output); err != nil {
		return nil, err
	}

	page := &ListsPage{Cursor: output.Cursor}
	for _, list := range output.Lists {
		page.Lists = append(page.Lists, ListView{
			URI:       list.URI,
			CID:       list.CID,
			Name:      list.Name,
			Purpose:   list.Purpose,
			IndexedAt: list.IndexedAt,
		})
	}

	return page, nil
}

// GetList enumerates the membership of the list at listURI.
func (client *XRPCClient) GetList(ctx context.Context, listURI string, limit int, cursor string) (*ListPage, error) {
	params := url.Values{}
	params.Set("list", listURI)
	params.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var output struct {
		Cursor string `json:"cursor"`
		Items  []struct {
			URI     string `json:"uri"`
			Subject struct {
				DID string `json:"did"`
			} `json:"subject"`
		} `json:"items"`
	}

	if err := client.query(ctx, queryGetList, params, &output); err != nil {
		return nil, err
	}

	page := &ListPage{Cursor: output.Cursor}
	for _, item := range output.Items {
		page.Items = append(page.Items, ListItemView{
			URI:        item.URI,
			SubjectDID: item.Subject.DID,
		})
	}

	return page, nil
}

// GetBlocks enumerates the authenticated account's active blocks.
func (client *XRPCClient) GetBlocks(ctx context.Context, limit int, cursor string) (*BlocksPage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var output struct {
		Cursor string `json:"cursor"`
		Blocks []struct {
			DID    string `json:"did"`
			Handle string `json:"handle"`
		} `json:"blocks"`
	}

	if err := client.query(ctx, queryGetBlocks, params, &output); err != nil {
		return nil, err
	}

	page := &BlocksPage{Cursor: output.Cursor}
	for _, blocked := range output.Blocks {
		page.Blocks = append(page.Blocks, BlockedView{DID: blocked.DID, Handle: blocked.Handle})
	}

	return page, nil
}

// # Transport

func (client *XRPCClient) accessToken() string {
	client.mu.RLock()
	defer client.mu.RUnlock()
	return client.session.AccessJwt
}

// procedure issues a POST call. token may be empty for unauthenticated
// procedures; input may be nil for bodyless procedures.
func (client *XRPCClient) procedure(ctx context.Context, method, token string, input, output any) error {
	endpoint := client.baseURL + "/xrpc/" + method

	var body io.Reader
	if input != nil {
		encoded, err := json.Marshal(input)
		if err != nil {
			return fmt.Errorf("atproto: failed to encode %s input: %w", method, err)
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("atproto: failed to build %s request: %w", method, err)
	}
	if input != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	return client.do(request, method, output)
}

// query issues a GET call with the installed access token.
func (client *XRPCClient) query(ctx context.Context, method string, params url.Values, output any) error {
	endpoint := client.baseURL + "/xrpc/" + method + "?" + params.Encode()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("atproto: failed to build %s request: %w", method, err)
	}
	if token := client.accessToken(); token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	return client.do(request, method, output)
}

func (client *XRPCClient) do(request *http.Request, method string, output any) error {
	response, err := client.httpClient.Do(request)
	if err != nil {
		return classifyTransport(method, err)
	}
	defer func() { _ = response.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(response.Body, 1<<22))
	if err != nil {
		return classifyTransport(method, err)
	}

	if response.StatusCode != http.StatusOK {
		return classifyStatus(method, response.StatusCode, payload)
	}

	if output == nil || len(payload) == 0 {
		return nil
	}

	if err := json.Unmarshal(payload, output); err != nil {
		return fmt.Errorf("atproto: failed to decode %s response: %w", method, err)
	}

	return nil
}
