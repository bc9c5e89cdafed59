// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package atproto

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
)

// subscribeReposMethod is the commit-stream subscription endpoint.
const subscribeReposMethod = "com.atproto.sync.subscribeRepos"

// CursorLiveEdge requests the stream from the current live edge (no cursor
// parameter is sent). Cursor 0 requests the earliest retained sequence.
const CursorLiveEdge int64 = -1

// # Frame Types

// Frame type identifiers carried in the frame header's "t" field.
const (
	FrameCommit = "#commit"
	FrameInfo   = "#info"
	FrameError  = "#error"
)

// frameHeader is the first CBOR document of every stream frame.
type frameHeader struct {
	Op   int8   `cbor:"op"`
	Type string `cbor:"t"`
}

// CommitEvent is the payload of a #commit frame: a set of record operations
// applied to one repository, with the touched records bundled as a CAR.
type CommitEvent struct {
	Seq    int64    `cbor:"seq"`
	Repo   string   `cbor:"repo"`
	Rev    string   `cbor:"rev"`
	TooBig bool     `cbor:"tooBig"`
	Blocks []byte   `cbor:"blocks"`
	Ops    []RepoOp `cbor:"ops"`
	Time   string   `cbor:"time"`
}

// RepoOp is one record operation inside a commit.
type RepoOp struct {
	Action string  `cbor:"action"`
	Path   string  `cbor:"path"`
	CID    CIDLink `cbor:"cid"`
}

// Collection returns the collection segment of the op path.
func (op RepoOp) Collection() string {
	collection, _, _ := strings.Cut(op.Path, "/")
	return collection
}

// InfoEvent is the payload of an #info frame.
type InfoEvent struct {
	Name    string `cbor:"name"`
	Message string `cbor:"message"`
}

// ErrorEvent is the payload of an error frame (header op = -1).
type ErrorEvent struct {
	Error   string `cbor:"error"`
	Message string `cbor:"message"`
}

// SeqEvent is the sequence number of a frame kind the engine does not
// otherwise interpret. Every sequenced lexicon message carries one.
type SeqEvent struct {
	Seq int64 `cbor:"seq"`
}

// Frame is one decoded stream message. Exactly one of the payload fields is
// set, matching Type.
type Frame struct {
	Type   string
	Commit *CommitEvent
	Info   *InfoEvent
	Err    *ErrorEvent
	Other  *SeqEvent
}

// Seq returns the frame's sequence number, or -1 when the frame kind carries
// none.
func (f *Frame) Seq() int64 {
	switch {
	case f.Commit != nil:
		return f.Commit.Seq
	case f.Other != nil:
		return f.Other.Seq
	default:
		return -1
	}
}

// # Subscription

// Subscription is a pull iterator over the repository commit stream.
//
// The websocket library delivers messages via blocking reads; an internal
// reader goroutine reifies them as a channel so [Subscription.Next] can honor
// context cancellation. This also keeps the frame handler a pure function of
// (state, frame) for testing.
type Subscription struct {
	conn   *websocket.Conn
	frames chan *Frame
	errs   chan error
	done   chan struct{}
}

// Subscribe dials the commit stream and starts the reader.
//
// cursor semantics: [CursorLiveEdge] omits the cursor parameter (live edge);
// any other value, including 0, is passed to the relay for replay.
func Subscribe(ctx context.Context, firehoseURL string, cursor int64) (*Subscription, error) {
	endpoint := strings.TrimRight(firehoseURL, "/") + "/xrpc/" + subscribeReposMethod
	if cursor != CursorLiveEdge {
		endpoint += "?cursor=" + strconv.FormatInt(cursor, 10)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, classifyTransport(subscribeReposMethod, err)
	}

	subscription := &Subscription{
		conn:   conn,
		frames: make(chan *Frame, 16),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}

	go subscription.readLoop()

	return subscription, nil
}

// Next blocks until the next frame, a stream error, or ctx cancellation.
func (s *Subscription) Next(ctx context.Context) (*Frame, error) {
	select {
	case frame := <-s.frames:
		return frame, nil
	case err := <-s.errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close tears down the websocket connection and stops the reader.
func (s *Subscription) Close() error {
	close(s.done)
	return s.conn.Close()
}

func (s *Subscription) readLoop() {
	for {
		messageType, payload, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case s.errs <- classifyTransport(subscribeReposMethod, err):
			case <-s.done:
			}
			return
		}

		if messageType != websocket.BinaryMessage {
			continue
		}

		frame, err := decodeFrame(payload)
		if err != nil {
			select {
			case s.errs <- err:
			case <-s.done:
			}
			return
		}

		select {
		case s.frames <- frame:
		case <-s.done:
			return
		}
	}
}

// # Frame Decoding

// decodeFrame splits a raw stream message into its two CBOR documents
// (header, payload) and decodes the payload per the header type.
func decodeFrame(payload []byte) (*Frame, error) {
	reader := bytes.NewReader(payload)
	decoder := streamDecMode.NewDecoder(reader)

	var header frameHeader
	if err := decoder.Decode(&header); err != nil {
		return nil, fmt.Errorf("atproto: failed to decode frame header: %w", err)
	}

	// op = -1 signals a terminal error frame; the "t" field is absent.
	if header.Op == -1 {
		var event ErrorEvent
		if err := decoder.Decode(&event); err != nil {
			return nil, fmt.Errorf("atproto: failed to decode error frame: %w", err)
		}
		return &Frame{Type: FrameError, Err: &event}, nil
	}

	switch header.Type {
	case FrameCommit:
		var event CommitEvent
		if err := decoder.Decode(&event); err != nil {
			return nil, fmt.Errorf("atproto: failed to decode commit frame: %w", err)
		}
		return &Frame{Type: FrameCommit, Commit: &event}, nil

	case FrameInfo:
		var event InfoEvent
		if err := decoder.Decode(&event); err != nil {
			return nil, fmt.Errorf("atproto: failed to decode info frame: %w", err)
		}
		return &Frame{Type: FrameInfo, Info: &event}, nil

	default:
		// Unknown frame kinds (new lexicon messages) still expose their
		// sequence number so the consumer can checkpoint past them.
		var event SeqEvent
		if err := decoder.Decode(&event); err != nil {
			return &Frame{Type: header.Type}, nil
		}
		return &Frame{Type: header.Type, Other: &event}, nil
	}
}

// streamDecMode tolerates unknown fields and decodes CBOR tags (the content
// links inside ops) via [CIDLink].
var streamDecMode cbor.DecMode

func init() {
	mode, err := cbor.DecOptions{
		MaxArrayElements: 1 << 20,
		MaxMapPairs:      1 << 20,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("atproto: invalid cbor decode options: %v", err))
	}
	streamDecMode = mode
}
