// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

// Package dberr provides a bridge between low-level database errors and
// higher-level application errors.
package dberr

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/haianhng/skymirror/internal/platform/apperr"
)

// Postgres SQLSTATE class 23: integrity constraint violations.
const uniqueViolation = "23505"

// Wrap inspects a database error and wraps it into a meaningful [apperr.AppError].
// It classifies the error so supervising loops can decide between skipping a
// unit of work and restarting the whole iteration.
func Wrap(err error, action string) error {
	if err == nil {
		return nil
	}

	// 1. Not Found mapping
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(action)
	}

	// 2. Unique-constraint collisions are idempotency signals, not failures.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperr.Conflict(action + ": duplicate key")
	}

	// 3. Everything else propagates to the supervising loop.
	return apperr.Permanent(action+" failed", err)
}
