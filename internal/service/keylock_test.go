package service

import (
	"sync"
	"testing"
	"time"
)

func TestKeyedMutex_SameKeySerializes(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("g1")

	acquired := make(chan struct{})
	go func() {
		u := k.Lock("g1")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock on the same key should block")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Lock never acquired after unlock")
	}
}

func TestKeyedMutex_DifferentKeysIndependent(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("g1")
	defer unlock()

	done := make(chan struct{})
	go func() {
		k.Lock("g2")()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("a different key should not block")
	}
}

func TestKeyedMutex_ForgetsIdleKeys(t *testing.T) {
	k := newKeyedMutex()
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.Lock("g1")()
		}()
	}
	wg.Wait()

	if n := k.size(); n != 0 {
		t.Errorf("size() = %d, want 0", n)
	}
}
