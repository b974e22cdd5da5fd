package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLocks(t *testing.T) {
	t.Run("Same Key Serializes", func(t *testing.T) {
		locks := newKeyedLocks()
		release := locks.Acquire("a")

		acquired := make(chan struct{})
		go func() {
			r := locks.Acquire("a")
			close(acquired)
			r()
		}()

		select {
		case <-acquired:
			t.Fatal("second acquire completed while the first still held the lock")
		case <-time.After(50 * time.Millisecond):
		}

		release()

		select {
		case <-acquired:
		case <-time.After(time.Second):
			t.Fatal("second acquire did not proceed after release")
		}
	})

	t.Run("Different Keys Run Concurrently", func(t *testing.T) {
		locks := newKeyedLocks()
		release := locks.Acquire("a")
		defer release()

		acquired := make(chan struct{})
		go func() {
			r := locks.Acquire("b")
			close(acquired)
			r()
		}()

		select {
		case <-acquired:
		case <-time.After(time.Second):
			t.Fatal("acquire on a different key blocked")
		}
	})

	t.Run("Entries Removed After Release", func(t *testing.T) {
		locks := newKeyedLocks()

		var wg sync.WaitGroup
		for i := 0; i < 12; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				release := locks.Acquire(fmt.Sprintf("key-%d", n%3))
				time.Sleep(5 * time.Millisecond)
				release()
			}(i)
		}
		wg.Wait()

		locks.mu.Lock()
		defer locks.mu.Unlock()
		assert.Empty(t, locks.locks)
	})
}
