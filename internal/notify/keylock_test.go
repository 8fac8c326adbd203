package notify

import (
	"sync"
	"testing"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	t.Parallel()

	k := newKeyedMutex()

	unlock := k.Lock("fp-1")

	entered := make(chan struct{})
	done := make(chan struct{})
	go func() {
		u := k.Lock("fp-1")
		close(entered)
		u()
		close(done)
	}()

	select {
	case <-entered:
		t.Fatalf("second Lock acquired while first still held")
	default:
	}

	unlock()
	<-done
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	t.Parallel()

	k := newKeyedMutex()

	ua := k.Lock("fp-a")
	// Must not block: a held lock on one key does not affect another.
	ub := k.Lock("fp-b")
	ub()
	ua()
}

func TestKeyedMutexCounter(t *testing.T) {
	t.Parallel()

	k := newKeyedMutex()
	var even, odd int

	const workers = 8
	const rounds = 200

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		key, n := "even", &even
		if i%2 == 1 {
			key, n = "odd", &odd
		}
		wg.Add(1)
		go func(key string, n *int) {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				unlock := k.Lock(key)
				*n++
				unlock()
			}
		}(key, n)
	}
	wg.Wait()

	want := workers / 2 * rounds
	if even != want || odd != want {
		t.Fatalf("even = %d, odd = %d, want %d each", even, odd, want)
	}
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	t.Parallel()

	k := newKeyedMutex()

	u1 := k.Lock("fp-1")
	u2 := k.Lock("fp-2")
	u1()
	u2()

	k.mu.Lock()
	n := len(k.locks)
	k.mu.Unlock()
	if n != 0 {
		t.Fatalf("len(locks) = %d after all unlocks, want 0", n)
	}
}
