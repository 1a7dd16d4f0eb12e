package destination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostline/rehydrate/pkg/types"
)

func testConfig() *types.DestinationConfig {
	return &types.DestinationConfig{
		DefaultBucket: "recovered-default",
		Profiles: []types.CollectionProfile{
			{
				Name:          "l0a",
				Tier:          types.LatencyBulk,
				ExcludedTypes: []string{".xml", ".cmr.json"},
				Rules: []types.DestinationRule{
					{Pattern: `.*\.h5$`, Bucket: "recovered-protected"},
					{Pattern: `.*\.h5\.mp$`, Bucket: "recovered-public"},
					{Pattern: `.*`, Bucket: "recovered-catchall"},
				},
			},
		},
	}
}

func TestResolveFirstMatchWins(t *testing.T) {
	r, err := NewResolver(testConfig())
	require.NoError(t, err)

	res, err := r.Resolve("l0a", "L0A_0420.h5", "")
	require.NoError(t, err)
	assert.Equal(t, "recovered-protected", res.Bucket)
	assert.False(t, res.Excluded)
	assert.Equal(t, types.LatencyBulk, res.Tier)

	// The catch-all rule is ordered last and only claims what earlier rules missed.
	res, err = r.Resolve("l0a", "L0A_0420.dat", "")
	require.NoError(t, err)
	assert.Equal(t, "recovered-catchall", res.Bucket)
}

func TestResolveExcludedSuffix(t *testing.T) {
	r, err := NewResolver(testConfig())
	require.NoError(t, err)

	res, err := r.Resolve("l0a", "L0A_0420.iso.xml", "")
	require.NoError(t, err)
	assert.True(t, res.Excluded)

	res, err = r.Resolve("l0a", "L0A_0420.cmr.json", "")
	require.NoError(t, err)
	assert.True(t, res.Excluded)
}

func TestResolveFallbacks(t *testing.T) {
	cfg := testConfig()
	cfg.Profiles[0].Rules = nil
	r, err := NewResolver(cfg)
	require.NoError(t, err)

	// No rule claims the key: request override wins over the default bucket.
	res, err := r.Resolve("l0a", "L0A_0420.dat", "operator-bucket")
	require.NoError(t, err)
	assert.Equal(t, "operator-bucket", res.Bucket)

	res, err = r.Resolve("l0a", "L0A_0420.dat", "")
	require.NoError(t, err)
	assert.Equal(t, "recovered-default", res.Bucket)
}

func TestResolveWithoutProfile(t *testing.T) {
	r, err := NewResolver(testConfig())
	require.NoError(t, err)

	res, err := r.Resolve("", "anything.h5", "")
	require.NoError(t, err)
	assert.Equal(t, "recovered-default", res.Bucket)
	assert.False(t, res.Excluded)
}

func TestResolveUnknownProfile(t *testing.T) {
	r, err := NewResolver(testConfig())
	require.NoError(t, err)

	_, err = r.Resolve("nonexistent", "file.h5", "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestNewResolverValidation(t *testing.T) {
	_, err := NewResolver(nil)
	assert.Error(t, err)

	_, err = NewResolver(&types.DestinationConfig{})
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Profiles[0].Rules[0].Pattern = `([unclosed`
	_, err = NewResolver(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `profile "l0a"`)

	cfg = testConfig()
	cfg.Profiles[0].Rules[0].Bucket = ""
	_, err = NewResolver(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "bucket is required")

	cfg = testConfig()
	cfg.Profiles = append(cfg.Profiles, cfg.Profiles[0])
	_, err = NewResolver(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate profile")
}
