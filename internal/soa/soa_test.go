package soa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogu/apx-go/internal/apxerr"
)

func TestAllocRejectsNonPositiveSize(t *testing.T) {
	a := New()
	_, err := a.Alloc(0)
	require.Error(t, err)
	assert.True(t, apxerr.Is(err, apxerr.InvalidArgument))
}

func TestAllocRoundsUpToSizeClass(t *testing.T) {
	a := New()
	buf, err := a.Alloc(3)
	require.NoError(t, err)
	assert.Len(t, buf, 3)
}

func TestAllocAboveSlabCeilingFallsThroughToSystemAllocator(t *testing.T) {
	a := New()
	buf, err := a.Alloc(SmallObjectMaxSize + 1)
	require.NoError(t, err)
	assert.Len(t, buf, SmallObjectMaxSize+1)
}

func TestAllocExhaustsSlabThenGrowsANewOne(t *testing.T) {
	a := New()
	bufs := make([][]byte, blocksPerSlab+1)
	for i := range bufs {
		b, err := a.Alloc(4)
		require.NoError(t, err)
		bufs[i] = b
	}
	assert.Len(t, bufs, blocksPerSlab+1)
	assert.Len(t, a.classes[4].slabs, 2)
}

func TestStartStopIsIdempotentAndDrainsPendingFrees(t *testing.T) {
	a := New(WithQueueDepth(4))
	a.Start()
	a.Start() // second call is a no-op, must not spawn a second worker

	buf, err := a.Alloc(4)
	require.NoError(t, err)
	a.Free(buf, 4)

	a.Stop() // must return once the free above has drained
}

func TestFreeNilPanics(t *testing.T) {
	a := New()
	a.Start()
	defer a.Stop()
	assert.Panics(t, func() { a.Free(nil, 4) })
}

func TestFreeDoesNotBlockCallerAndAllocatorStaysUsable(t *testing.T) {
	a := New(WithQueueDepth(1))
	a.Start()
	defer a.Stop()

	first, err := a.Alloc(4)
	require.NoError(t, err)
	a.Free(first, 4)

	second, err := a.Alloc(4)
	require.NoError(t, err)
	assert.Len(t, second, 4)
}
