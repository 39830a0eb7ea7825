package bufferpool

import (
	"testing"

	blockmanager "QuadDB/storage_engine/block_manager"
	"QuadDB/storage_engine/dberrors"
	"QuadDB/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPool(t *testing.T, capacity int) *BufferPool {
	t.Helper()
	mem, err := blockmanager.NewMem("pool-test", 64)
	require.NoError(t, err)
	bp, err := New(mem, capacity, nil)
	require.NoError(t, err)
	return bp
}

func TestRejectsZeroCapacity(t *testing.T) {
	mem, err := blockmanager.NewMem("pool-test", 64)
	require.NoError(t, err)
	_, err = New(mem, 0, nil)
	assert.Error(t, err)
}

func TestWriteThroughVisibleAfterCaching(t *testing.T) {
	bp := newPool(t, 8)
	defer bp.Close()

	b, err := bp.Allocate(types.BlockTypeRecordPage)
	require.NoError(t, err)
	id := b.ID
	b.Data[0] = 1
	require.NoError(t, bp.Write(b))
	bp.Release(b)

	// read twice so the image has a chance to be cached
	for i := 0; i < 2; i++ {
		r, err := bp.GetRead(id)
		require.NoError(t, err)
		assert.Equal(t, byte(1), r.Data[0])
		bp.Release(r)
	}

	w, err := bp.GetWrite(id)
	require.NoError(t, err)
	w.Data[0] = 2
	require.NoError(t, bp.Write(w))
	bp.Release(w)

	r, err := bp.GetRead(id)
	require.NoError(t, err)
	assert.Equal(t, byte(2), r.Data[0])
	assert.True(t, r.ReadOnly())
	bp.Release(r)

	// the base manager agrees
	base, err := bp.Base().GetRead(id)
	require.NoError(t, err)
	assert.Equal(t, byte(2), base.Data[0])
	bp.Base().Release(base)
}

func TestUnwrittenChangesAreDropped(t *testing.T) {
	bp := newPool(t, 8)
	defer bp.Close()

	b, err := bp.Allocate(types.BlockTypeRecordPage)
	require.NoError(t, err)
	id := b.ID
	bp.Release(b)

	w, err := bp.GetWrite(id)
	require.NoError(t, err)
	w.Data[3] = 9
	bp.Release(w)

	r, err := bp.GetRead(id)
	require.NoError(t, err)
	assert.Equal(t, byte(0), r.Data[3])
	bp.Release(r)
}

func TestFreeInvalidates(t *testing.T) {
	bp := newPool(t, 8)
	defer bp.Close()

	b, err := bp.Allocate(types.BlockTypeRecordPage)
	require.NoError(t, err)
	id := b.ID
	b.Data[0] = 7
	require.NoError(t, bp.Write(b))
	bp.Release(b)

	r, err := bp.GetRead(id)
	require.NoError(t, err)
	bp.Release(r)

	require.NoError(t, bp.Free(id))
	assert.False(t, bp.Valid(id))
	_, err = bp.GetRead(id)
	assert.True(t, dberrors.IsBlockNotFound(err))

	// the freed id comes back zeroed, not with the old image
	again, err := bp.Allocate(types.BlockTypeRecordPage)
	require.NoError(t, err)
	assert.Equal(t, id, again.ID)
	bp.Release(again)

	r, err = bp.GetRead(id)
	require.NoError(t, err)
	assert.Equal(t, byte(0), r.Data[0])
	bp.Release(r)
}

func TestCheckoutsBalance(t *testing.T) {
	bp := newPool(t, 2)
	defer bp.Close()

	var ids []types.BlockID
	for i := 0; i < 5; i++ {
		b, err := bp.Allocate(types.BlockTypeRecordPage)
		require.NoError(t, err)
		ids = append(ids, b.ID)
		bp.Release(b)
	}
	for _, id := range ids {
		r, err := bp.GetRead(id)
		require.NoError(t, err)
		assert.Equal(t, 1, bp.Checkouts())
		bp.Release(r)
	}
	assert.Equal(t, 0, bp.Checkouts())
	assert.Equal(t, 0, bp.Base().Checkouts())
}

func TestStatsCountLookups(t *testing.T) {
	bp := newPool(t, 4)
	defer bp.Close()

	b, err := bp.Allocate(types.BlockTypeRecordPage)
	require.NoError(t, err)
	bp.Release(b)

	for i := 0; i < 3; i++ {
		r, err := bp.GetRead(b.ID)
		require.NoError(t, err)
		bp.Release(r)
	}
	stats := bp.GetStats()
	assert.Equal(t, 4, stats.Capacity)
	assert.Equal(t, uint64(3), stats.Hits+stats.Misses)
	assert.GreaterOrEqual(t, stats.Misses, uint64(1))

	bp.Reset()
	assert.Equal(t, uint64(0), bp.GetStats().Hits+bp.GetStats().Misses)
}
