package testutil

import (
	"sync"
	"testing"
)

func TestClockMonotonic(t *testing.T) {
	c := NewClock(1700000000)

	if got := c.Next(); got != 1700000000 {
		t.Errorf("first Next() = %d, want 1700000000", got)
	}
	if got := c.Next(); got != 1700000001 {
		t.Errorf("second Next() = %d, want 1700000001", got)
	}
	if got := c.Current(); got != 1700000001 {
		t.Errorf("Current() = %d, want 1700000001", got)
	}
}

func TestClockReset(t *testing.T) {
	c := NewClock(100)
	c.Next()
	c.Next()
	c.Reset()

	if got := c.Next(); got != 100 {
		t.Errorf("Next() after Reset = %d, want 100", got)
	}
}

func TestClockConcurrent(t *testing.T) {
	c := NewClock(0)
	var wg sync.WaitGroup

	seen := make([]uint64, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seen[i] = c.Next()
		}(i)
	}
	wg.Wait()

	unique := make(map[uint64]bool, 100)
	for _, ts := range seen {
		if unique[ts] {
			t.Fatalf("timestamp %d handed out twice", ts)
		}
		unique[ts] = true
	}
	if got := c.Current(); got != 99 {
		t.Errorf("Current() after 100 calls = %d, want 99", got)
	}
}
