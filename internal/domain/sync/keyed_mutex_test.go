package sync

import (
	stdsync "sync"
	"testing"
	"time"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := newKeyedMutex()

	var mu stdsync.Mutex
	var active, maxActive int

	var wg stdsync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock(42)
			defer unlock()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("expected at most 1 concurrent holder per key, saw %d", maxActive)
	}
}

func TestKeyedMutex_DifferentKeysProceedInParallel(t *testing.T) {
	km := newKeyedMutex()

	unlock1 := km.Lock(1)
	defer unlock1()

	done := make(chan struct{})
	go func() {
		unlock2 := km.Lock(2)
		unlock2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked behind key 1")
	}
}

func TestKeyedMutex_CleansUpAfterLastUnlock(t *testing.T) {
	km := newKeyedMutex()

	unlock := km.Lock(7)
	unlock()

	km.mu.Lock()
	defer km.mu.Unlock()
	if len(km.locks) != 0 {
		t.Errorf("expected empty lock map after unlock, got %d entries", len(km.locks))
	}
}
