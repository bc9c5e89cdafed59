// Copyright (c) 2026 Skymirror. All rights reserved.
// Author: hai.anhnguyen.dev@gmail.com

package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haianhng/skymirror/internal/platform/apperr"
	"github.com/haianhng/skymirror/internal/platform/validate"
)

/*
TestValidator_Required tests the mandatory field validation logic.
*/
func TestValidator_Required(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		value    string
		hasError bool
	}{
		{"valid_string", "handle", "mirror.bsky.social", false},
		{"empty_string", "handle", "", true},
		{"whitespace_only", "handle", "   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &validate.Validator{}
			v.Required(tt.field, tt.value)

			if tt.hasError {
				assert.True(t, v.HasErrors())
				err := v.Err()
				require.NotNil(t, err)

				ae := apperr.As(err)
				require.NotNil(t, ae)
				assert.Equal(t, apperr.KindValidation, ae.Kind)
				assert.Equal(t, tt.field, ae.Details[0].Field)
			} else {
				assert.False(t, v.HasErrors())
				assert.Nil(t, v.Err())
			}
		})
	}
}

/*
TestValidator_DID checks the decentralized identifier format rule.
*/
func TestValidator_DID(t *testing.T) {
	tests := []struct {
		name    string
		did     string
		isValid bool
	}{
		{"plc_did", "did:plc:z72i7hdynmk6r22z27h6tvur", true},
		{"web_did", "did:web:example.com", true},
		{"missing_prefix", "plc:z72i7hdynmk6r22z27h6tvur", false},
		{"uppercase_method", "did:PLC:z72i7hdynmk6r22z27h6tvur", false},
		{"empty_identifier", "did:plc:", false},
		{"plain_handle", "mirror.bsky.social", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &validate.Validator{}
			v.DID("did", tt.did)

			assert.Equal(t, !tt.isValid, v.HasErrors())
		})
	}
}

/*
TestValidator_OneOf checks membership in an allowed value set.
*/
func TestValidator_OneOf(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		isValid bool
	}{
		{"first_allowed", "database", true},
		{"last_allowed", "redis", true},
		{"not_allowed", "memory", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &validate.Validator{}
			v.OneOf("session_store", tt.value, "database", "file", "redis")

			assert.Equal(t, !tt.isValid, v.HasErrors())
		})
	}
}

/*
TestValidator_Positive checks the positive integer rule.
*/
func TestValidator_Positive(t *testing.T) {
	tests := []struct {
		name    string
		value   int
		isValid bool
	}{
		{"positive", 50, true},
		{"zero", 0, false},
		{"negative", -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &validate.Validator{}
			v.Positive("batch_size", tt.value)

			assert.Equal(t, !tt.isValid, v.HasErrors())
		})
	}
}

/*
TestValidator_Chaining verifies that multiple failures accumulate into one
error with per-field details.
*/
func TestValidator_Chaining(t *testing.T) {
	v := &validate.Validator{}
	v.Required("handle", "").
		DID("did", "bogus").
		Custom("page", true, "Must be at least 1").
		Fail("redis_url", "required when SESSION_STORE=redis")

	err := v.Err()
	require.NotNil(t, err)

	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Len(t, ae.Details, 4)
	assert.Equal(t, "handle", ae.Details[0].Field)
	assert.Equal(t, "redis_url", ae.Details[3].Field)
}
