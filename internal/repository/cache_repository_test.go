package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/aidly/aidly-api/pkg/errors"
)

func TestCacheRepositoryWithoutClientIsAlwaysMiss(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "analytics:dashboard", map[string]int{"open": 3}, time.Minute))

	var out map[string]int
	assert.ErrorIs(t, repo.Get(ctx, "analytics:dashboard", &out), appErrors.ErrCacheMiss)
	assert.Nil(t, out)

	require.NoError(t, repo.Delete(ctx, "analytics:dashboard"))
	removed, err := repo.DeleteByPattern(ctx, "analytics:*")
	require.NoError(t, err)
	assert.Zero(t, removed)
	require.NoError(t, repo.Close())
}
