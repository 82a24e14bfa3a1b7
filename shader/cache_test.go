package shader

import (
	"encoding/binary"
	"errors"
	"sync"
	"testing"
)

// fakeCompiler returns a valid header-only module and counts calls.
type fakeCompiler struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeCompiler) compile(string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	code := make([]byte, 20)
	binary.LittleEndian.PutUint32(code, spirvMagic)
	return code, nil
}

func newTestCache(capacity int) (*Cache, *fakeCompiler) {
	f := &fakeCompiler{}
	c := NewCache(capacity)
	c.compile = f.compile
	return c, f
}

func TestCacheHit(t *testing.T) {
	c, f := newTestCache(4)

	a, err := c.Compile("src", "vs", "fs")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	b, err := c.Compile("src", "vs", "fs")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if f.calls != 1 {
		t.Errorf("compiler called %d times, want 1", f.calls)
	}
	if &a.Vertex.Code[0] != &b.Vertex.Code[0] {
		t.Error("hit returned a different program")
	}
	if b.Vertex.Entry != "vs" || b.Fragment.Entry != "fs" {
		t.Errorf("entries = %q, %q", b.Vertex.Entry, b.Fragment.Entry)
	}

	// Entry points are part of the key.
	if _, err := c.Compile("src", "main", "fs"); err != nil {
		t.Fatal(err)
	}
	if f.calls != 2 {
		t.Errorf("compiler called %d times, want 2", f.calls)
	}
	if got := c.Stats(); got != (CacheStats{Hits: 1, Misses: 2}) {
		t.Errorf("Stats() = %+v", got)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, f := newTestCache(2)
	for _, src := range []string{"a", "b", "a", "c"} {
		if _, err := c.Compile(src, "vs", "fs"); err != nil {
			t.Fatal(err)
		}
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}

	calls := f.calls
	if _, err := c.Compile("a", "vs", "fs"); err != nil {
		t.Fatal(err)
	}
	if f.calls != calls {
		t.Error("recently used program was evicted")
	}
	if _, err := c.Compile("b", "vs", "fs"); err != nil {
		t.Fatal(err)
	}
	if f.calls != calls+1 {
		t.Error("least recently used program was not evicted")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d", c.Len())
	}
}

func TestCacheDoesNotKeepFailures(t *testing.T) {
	c, f := newTestCache(2)
	f.err = errors.New("syntax error")
	if _, err := c.Compile("bad", "vs", "fs"); err == nil {
		t.Fatal("Compile() succeeded, want error")
	}
	f.err = nil
	if _, err := c.Compile("bad", "vs", "fs"); err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if c.Len() != 1 || f.calls != 2 {
		t.Errorf("Len() = %d, calls = %d, want 1, 2", c.Len(), f.calls)
	}
}

func TestCacheConcurrentCompile(t *testing.T) {
	c, f := newTestCache(4)
	var wg sync.WaitGroup
	for range 32 {
		wg.Go(func() {
			if _, err := c.Compile("shared", "vs", "fs"); err != nil {
				t.Error(err)
			}
		})
	}
	wg.Wait()
	if f.calls != 1 {
		t.Errorf("compiler called %d times, want 1", f.calls)
	}
}
