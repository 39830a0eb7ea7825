package dberrors

import (
	"testing"

	"QuadDB/types"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedErrorsSurviveWrapping(t *testing.T) {
	err := errors.Wrap(NotFound("nodes", 7), "fetch")
	assert.True(t, IsBlockNotFound(err))
	assert.False(t, IsDuplicateKey(err))
	assert.Contains(t, err.Error(), "block 7 not found")

	err = errors.Wrapf(Duplicate([]byte{0x01, 0xab}), "add")
	assert.True(t, IsDuplicateKey(err))
	assert.Contains(t, err.Error(), "01ab")

	assert.True(t, IsCapacity(Capacity("block %d too small", 4)))
	assert.True(t, errors.Is(errors.Wrap(ErrUnsortedInput, "build"), ErrUnsortedInput))
}

func TestConsistencyErrorLocation(t *testing.T) {
	e := Inconsistent(types.Ref(12), []byte{0xff}, "bad order %d", 3)
	assert.Equal(t, "storage consistency: bad order 3 [block 12] [key ff]", e.Error())

	e = Inconsistent(types.NoBlock, nil, "no location")
	assert.Equal(t, "storage consistency: no location", e.Error())
}

func TestRecoverTurnsFatalIntoError(t *testing.T) {
	run := func() (err error) {
		defer Recover(&err)
		Fatalf(types.Ref(3), nil, "boom")
		return nil
	}
	err := run()
	require.Error(t, err)
	assert.True(t, IsConsistency(err))

	assert.Panics(t, func() {
		var err error
		defer Recover(&err)
		panic("not ours")
	})
}
