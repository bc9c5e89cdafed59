// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

// Package respond provides HTTP response helpers for the diagnostics surface.
//
// # Architecture
//
// This package centralizes the presentation logic for the small HTTP surface
// Skymirror exposes (health, readiness, metrics). Every JSON response follows
// the same envelope so probes and dashboards can parse it robustly.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/haianhng/skymirror/internal/platform/apperr"
)

// SuccessEnvelope is the JSON envelope for successful responses.
type SuccessEnvelope struct {
	Data interface{} `json:"data"`
}

// ErrorEnvelope is the JSON envelope for error responses.
type ErrorEnvelope struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// JSON writes a JSON response with the given status code.
func JSON(writer http.ResponseWriter, statusCode int, payload interface{}) {
	writer.Header().Set("Content-Type", "application/json; charset=utf-8")
	writer.WriteHeader(statusCode)
	_ = json.NewEncoder(writer).Encode(payload)
}

// OK writes a 200 OK response with data wrapped in the standard success envelope.
func OK(writer http.ResponseWriter, data interface{}) {
	JSON(writer, http.StatusOK, SuccessEnvelope{Data: data})
}

// Error converts any Go error into a standardized JSON error response.
func Error(writer http.ResponseWriter, err error) {
	appError := apperr.As(err)
	if appError == nil {
		JSON(writer, http.StatusInternalServerError, ErrorEnvelope{
			Error: "An unexpected error occurred",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	status := appError.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	JSON(writer, status, ErrorEnvelope{
		Error: appError.Message,
		Code:  string(appError.Kind),
	})
}
