// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

package keyring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calldrop/calldrop/internal/config"
)

func newRegistry(t *testing.T, keys []config.APIKeyConfig) *Registry {
	t.Helper()
	r, err := New(keys)
	require.NoError(t, err)
	return r
}

func TestAuthorizeMatchesKey(t *testing.T) {
	r := newRegistry(t, []config.APIKeyConfig{
		{Key: "alpha"},
		{Key: "bravo"},
	})

	id, err := r.Authorize("bravo", "203.0.113.7", "11")
	require.NoError(t, err)
	assert.Equal(t, "key_1", id)

	id, err = r.Authorize("alpha", "203.0.113.7", "11")
	require.NoError(t, err)
	assert.Equal(t, "key_0", id)
}

func TestAuthorizeUnknownKey(t *testing.T) {
	r := newRegistry(t, []config.APIKeyConfig{{Key: "alpha"}})

	_, err := r.Authorize("charlie", "203.0.113.7", "11")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = r.Authorize("", "203.0.113.7", "11")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthorizeIPRestrictions(t *testing.T) {
	r := newRegistry(t, []config.APIKeyConfig{
		{Key: "alpha", AllowedIPs: []string{"10.0.0.5", "203.0.113.0/24"}},
	})

	// exact address
	_, err := r.Authorize("alpha", "10.0.0.5", "11")
	assert.NoError(t, err)

	// inside CIDR
	_, err = r.Authorize("alpha", "203.0.113.200", "11")
	assert.NoError(t, err)

	// outside both
	_, err = r.Authorize("alpha", "198.51.100.1", "11")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorizeSystemRestrictions(t *testing.T) {
	r := newRegistry(t, []config.APIKeyConfig{
		{Key: "alpha", AllowedSystems: []string{"11", "12"}},
	})

	_, err := r.Authorize("alpha", "203.0.113.7", "12")
	assert.NoError(t, err)

	_, err = r.Authorize("alpha", "203.0.113.7", "99")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorizeUnrestrictedKeyAcceptsAnySourceAndSystem(t *testing.T) {
	r := newRegistry(t, []config.APIKeyConfig{{Key: "alpha"}})

	_, err := r.Authorize("alpha", "198.51.100.99", "424242")
	assert.NoError(t, err)
}

func TestOpenModeAcceptsEverything(t *testing.T) {
	r := newRegistry(t, nil)
	require.True(t, r.OpenMode())

	id, err := r.Authorize("anything", "198.51.100.1", "1")
	require.NoError(t, err)
	assert.Equal(t, "none", id)
}

func TestNewRejectsMalformedAllowedIP(t *testing.T) {
	_, err := New([]config.APIKeyConfig{
		{Key: "alpha", AllowedIPs: []string{"not-an-ip"}},
	})
	require.Error(t, err)
}

func TestAuthorizeUnparseableSourceNeverMatchesRestrictedKey(t *testing.T) {
	r := newRegistry(t, []config.APIKeyConfig{
		{Key: "alpha", AllowedIPs: []string{"203.0.113.0/24"}},
	})

	_, err := r.Authorize("alpha", "garbage", "11")
	assert.ErrorIs(t, err, ErrForbidden)
}
