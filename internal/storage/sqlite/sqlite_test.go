package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valvecloud/internal/tuya"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_TokenRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Empty store reports no token, not an error
	token, err := store.GetToken(ctx)
	require.NoError(t, err)
	assert.Nil(t, token)

	expiresAt := time.Now().Add(2 * time.Hour)
	require.NoError(t, store.SaveToken(ctx, &tuya.AccessToken{
		Value:     "token-1",
		ExpiresAt: expiresAt,
	}))

	token, err = store.GetToken(ctx)
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "token-1", token.Value)
	assert.WithinDuration(t, expiresAt, token.ExpiresAt, time.Second)
}

func TestStore_TokenReplacedWholesale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveToken(ctx, &tuya.AccessToken{
		Value:     "token-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, store.SaveToken(ctx, &tuya.AccessToken{
		Value:     "token-2",
		ExpiresAt: time.Now().Add(2 * time.Hour),
	}))

	token, err := store.GetToken(ctx)
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "token-2", token.Value)
}

func TestStore_DeleteToken(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Deleting from an empty store is fine
	require.NoError(t, store.DeleteToken(ctx))

	require.NoError(t, store.SaveToken(ctx, &tuya.AccessToken{
		Value:     "token-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, store.DeleteToken(ctx))

	token, err := store.GetToken(ctx)
	require.NoError(t, err)
	assert.Nil(t, token)
}

func TestStore_DeviceMetadataRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	meta, err := store.GetDeviceMetadata(ctx, "dev123")
	require.NoError(t, err)
	assert.Nil(t, meta)

	want := &tuya.DeviceMetadata{
		ID:          "dev123",
		Name:        "Garden Valve",
		Model:       "WV-1",
		MAC:         "aa:bb:cc:dd:ee:ff",
		Serial:      "SN0001",
		Category:    "sfkzq",
		ProductID:   "prod-1",
		ProductName: "Remote Water Valve",
	}
	require.NoError(t, store.SaveDeviceMetadata(ctx, want))

	meta, err = store.GetDeviceMetadata(ctx, "dev123")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, want, meta)

	// Different device id is a miss
	meta, err = store.GetDeviceMetadata(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestStore_ImplementsTokenStore(t *testing.T) {
	var _ tuya.TokenStore = (*Store)(nil)
}
