package ledgertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/pkg/types"
)

// TestRequestPutGet verifies put, get, and not-found behavior for requests.
func TestRequestPutGet(t *testing.T, led ledger.Ledger) {
	ctx := context.Background()

	req := types.RecoveryRequest{
		RequestID:   "ct-req-1",
		RequestedBy: "ops@example.com",
		Profile:     "landsat",
		Granules: []types.GranuleSpec{
			{
				GranuleID: "ct-req-granule",
				Files: []types.FileSpec{
					{Key: "ct-req-granule/scene.h5", Bucket: "ct-archive"},
				},
			},
		},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, led.PutRequest(ctx, req))

	got, err := led.GetRequest(ctx, "ct-req-1")
	require.NoError(t, err)
	assert.Equal(t, "ct-req-1", got.RequestID)
	assert.Equal(t, "landsat", got.Profile)
	require.Len(t, got.Granules, 1)
	assert.Equal(t, "ct-req-granule", got.Granules[0].GranuleID)

	_, err = led.GetRequest(ctx, "ct-req-nonexistent")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
