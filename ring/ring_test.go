package ring

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsZeroCapacity(t *testing.T) {
	_, err := New[int](0)
	require.Error(t, err)
}

func TestTryPushTryPopFIFO(t *testing.T) {
	r, err := New[int](4)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		assert.True(t, r.TryPush(i))
	}
	assert.False(t, r.TryPush(99), "ring should be full")

	for i := 0; i < 4; i++ {
		v, ok := r.TryPop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := r.TryPop()
	assert.False(t, ok, "ring should be empty")
}

func TestSizeNeverExceedsCapacity(t *testing.T) {
	r, err := New[int](3)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		r.TryPush(i)
		assert.LessOrEqual(t, r.Size(), r.Cap())
	}
}

func TestNonPowerOfTwoCapacityWraps(t *testing.T) {
	r, err := New[int](5)
	require.NoError(t, err)

	for round := 0; round < 3; round++ {
		for i := 0; i < 5; i++ {
			require.True(t, r.TryPush(round*5+i))
		}
		for i := 0; i < 5; i++ {
			v, ok := r.TryPop()
			require.True(t, ok)
			assert.Equal(t, round*5+i, v)
		}
	}
}

// TestSPSCConcurrentOrderPreserved mirrors invariant 2: events observed by
// the consumer are a permutation-preserving (here: exact) function of what
// the single producer pushed.
func TestSPSCConcurrentOrderPreserved(t *testing.T) {
	r, err := New[int](8)
	require.NoError(t, err)

	const n = 20000
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			for !r.TryPush(i) {
				seen := r.Epoch()
				r.Wait(seen)
			}
		}
	}()

	got := make([]int, 0, n)
	go func() {
		defer wg.Done()
		for len(got) < n {
			v, ok := r.TryPop()
			if !ok {
				seen := r.Epoch()
				r.Wait(seen)
				continue
			}
			got = append(got, v)
		}
	}()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out draining SPSC ring")
	}

	for i := 0; i < n; i++ {
		require.Equal(t, i, got[i])
	}
}

func TestKickWakesWaiter(t *testing.T) {
	r, err := New[int](1)
	require.NoError(t, err)

	woke := make(chan struct{})
	go func() {
		seen := r.Epoch()
		r.Wait(seen)
		close(woke)
	}()

	time.Sleep(20 * time.Millisecond)
	r.Kick()

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("Kick did not wake the waiter")
	}
}
