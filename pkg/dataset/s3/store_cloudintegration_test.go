//go:build cloudintegration

package s3_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gohops/pkg/dataset"
	"github.com/3leaps/gohops/pkg/dataset/s3"
	"github.com/3leaps/gohops/test/cloudtest"
)

func TestStore_CloudIntegration(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()

	gw := cloudtest.NewGateway(t, ctx, "hopsfs/")
	gw.PutDatasetFile(t, ctx, "/Projects/demo/Logs/out.log", []byte("stdout\n"))

	st, err := s3.New(ctx, gw.StoreConfig(), nil)
	require.NoError(t, err)

	t.Run("exists", func(t *testing.T) {
		ok, err := st.Exists(ctx, "/Projects/demo/Logs/out.log")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = st.Exists(ctx, "/Projects/demo/Logs/err.log")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("download", func(t *testing.T) {
		dir := t.TempDir()
		local, err := st.Download(ctx, "/Projects/demo/Logs/out.log", dir, false)
		require.NoError(t, err)

		data, err := os.ReadFile(local)
		require.NoError(t, err)
		assert.Equal(t, "stdout\n", string(data))

		_, err = st.Download(ctx, "/Projects/demo/Logs/out.log", dir, false)
		assert.True(t, dataset.IsExists(err))
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, st.Remove(ctx, "/Projects/demo/Logs/out.log"))
		assert.False(t, gw.HasDatasetFile(t, ctx, "/Projects/demo/Logs/out.log"))
	})
}
