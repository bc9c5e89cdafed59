// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haianhng/skymirror/internal/platform/apperr"
)

func TestPolicyHelpers(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"transient matches", apperr.Transient("dial timeout", nil), apperr.IsTransient, true},
		{"rate limited matches", apperr.RateLimited("write budget exhausted", nil), apperr.IsRateLimited, true},
		{"auth expired matches", apperr.AuthExpired("token rejected", nil), apperr.IsAuthExpired, true},
		{"conflict matches", apperr.Conflict("record already exists"), apperr.IsConflict, true},
		{"not found matches", apperr.NotFound("Session"), apperr.IsNotFound, true},
		{"kinds do not cross", apperr.Conflict("record already exists"), apperr.IsTransient, false},
		{"plain error matches nothing", errors.New("boom"), apperr.IsTransient, false},
		{"nil matches nothing", nil, apperr.IsNotFound, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.check(tc.err))
		})
	}
}

func TestHelpersTraverseWrapChain(t *testing.T) {
	inner := apperr.RateLimited("upstream said RateLimitExceeded", errors.New("429"))
	wrapped := fmt.Errorf("create block: %w", inner)

	assert.True(t, apperr.IsRateLimited(wrapped))
	assert.False(t, apperr.IsTransient(wrapped))
}

func TestAs(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("firehose read: %w", apperr.Transient("stream interrupted", cause))

	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, apperr.KindTransient, ae.Kind)
	assert.Equal(t, "stream interrupted", ae.Message)
	assert.True(t, errors.Is(err, cause))

	assert.Nil(t, apperr.As(errors.New("boom")))
	assert.Nil(t, apperr.As(nil))
}

func TestErrorString(t *testing.T) {
	withCause := apperr.Permanent("unexpected response shape", errors.New("missing did"))
	assert.Equal(t, "PERMANENT: unexpected response shape: missing did", withCause.Error())

	withoutCause := apperr.NotFound("Primary account")
	assert.Equal(t, "NOT_FOUND: Primary account not found", withoutCause.Error())
}

func TestStatusAndDetails(t *testing.T) {
	assert.Equal(t, 429, apperr.RateLimited("slow down", nil).Status)
	assert.Equal(t, 401, apperr.AuthExpired("expired", nil).Status)
	assert.Equal(t, 409, apperr.Conflict("exists").Status)
	assert.Equal(t, 404, apperr.NotFound("Block row").Status)

	verr := apperr.Validation("invalid configuration",
		apperr.FieldError{Field: "accounts", Message: "at least one account is required"},
		apperr.FieldError{Field: "port", Message: "must be positive"},
	)
	assert.Equal(t, apperr.KindValidation, verr.Kind)
	require.Len(t, verr.Details, 2)
	assert.Equal(t, "accounts", verr.Details[0].Field)
}
