package quarry_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarryorm/quarry"
)

func TestStmtText_Get(t *testing.T) {
	t.Run("ComputesOnce", func(t *testing.T) {
		var stmt quarry.StmtText
		var calls int32
		build := func() (string, error) {
			atomic.AddInt32(&calls, 1)
			return "SELECT 1", nil
		}
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				text, err := stmt.Get(build)
				assert.NoError(t, err)
				assert.Equal(t, "SELECT 1", text)
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("ErrorNotPublished", func(t *testing.T) {
		var stmt quarry.StmtText
		boom := errors.New("boom")
		_, err := stmt.Get(func() (string, error) { return "", boom })
		require.ErrorIs(t, err, boom)

		// A failed build must not poison the holder.
		text, err := stmt.Get(func() (string, error) { return "SELECT 2", nil })
		require.NoError(t, err)
		assert.Equal(t, "SELECT 2", text)
	})

	t.Run("MustGet", func(t *testing.T) {
		var stmt quarry.StmtText
		assert.Equal(t, "DELETE FROM T", stmt.MustGet(func() string { return "DELETE FROM T" }))
		// Second call returns the published text without rebuilding.
		assert.Equal(t, "DELETE FROM T", stmt.MustGet(func() string { return "other" }))
	})
}
