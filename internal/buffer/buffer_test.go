package buffer_test

import (
	"sync"
	"testing"

	"github.com/mickamy/auditlog/internal/buffer"
)

func TestBuffer_Drain(t *testing.T) {
	t.Parallel()

	b := buffer.NewBuffer[int]()
	b.Add(1)
	b.Add(2)
	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}

	got := b.Drain()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("Drain() = %v, want [1 2]", got)
	}
	if again := b.Drain(); len(again) != 0 {
		t.Fatalf("second Drain() = %v, want empty", again)
	}
}

func TestBuffer_Reset(t *testing.T) {
	t.Parallel()

	b := buffer.NewBuffer[string]()
	b.Add("insert")
	b.Reset()
	if got := b.Drain(); len(got) != 0 {
		t.Fatalf("Drain() after Reset = %v, want empty", got)
	}
}

func TestBuffer_ConcurrentAdd(t *testing.T) {
	t.Parallel()

	b := buffer.NewBuffer[int]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Add(i)
		}(i)
	}
	wg.Wait()
	if got := b.Drain(); len(got) != 50 {
		t.Fatalf("len(Drain()) = %d, want 50", len(got))
	}
}
