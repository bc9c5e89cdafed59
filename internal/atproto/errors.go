// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package atproto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/haianhng/skymirror/internal/platform/apperr"
)

// xrpcError is the standard error envelope returned by the service.
type xrpcError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Upstream error identifiers with a fixed handling policy.
const (
	errRateLimitExceeded = "RateLimitExceeded"
	errExpiredToken      = "ExpiredToken"
	errInvalidToken      = "InvalidToken"
	errAuthRequired      = "AuthenticationRequired"
)

// classifyStatus maps a non-200 XRPC response onto the tagged taxonomy.
// This is the single place transport errors become policy decisions.
func classifyStatus(method string, status int, payload []byte) error {
	var envelope xrpcError
	_ = json.Unmarshal(payload, &envelope)

	detail := envelope.Message
	if detail == "" {
		detail = envelope.Error
	}
	msg := fmt.Sprintf("%s: %s", method, detail)

	switch {
	case status == http.StatusTooManyRequests || envelope.Error == errRateLimitExceeded:
		return apperr.RateLimited(msg, nil)

	case status == http.StatusUnauthorized,
		envelope.Error == errExpiredToken,
		envelope.Error == errInvalidToken,
		envelope.Error == errAuthRequired:
		return apperr.AuthExpired(msg, nil)

	case status == http.StatusConflict,
		strings.Contains(strings.ToLower(detail), "already exists"):
		return apperr.Conflict(msg)

	case status == http.StatusNotFound,
		strings.Contains(detail, "Could not locate record"):
		return apperr.NotFound(method)

	case status >= 500:
		return apperr.Transient(msg, nil)
	}

	return apperr.Permanent(msg, nil)
}

// classifyTransport maps connection-level failures (dial, reset, timeout).
// Context cancellation is passed through untouched so shutdown is not
// mistaken for a network fault.
func classifyTransport(method string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperr.Transient(method+" transport failure", err)
}
