package register

import (
	"errors"
	"sync"
	"testing"
)

func TestSaveRead(t *testing.T) {
	s := NewStore()

	for i := 0; i < Count; i++ {
		want := string(rune('a'+i)) + " snippet"
		if err := s.Save(i, want); err != nil {
			t.Fatalf("Save(%d) failed: %v", i, err)
		}
		got, err := s.Read(i)
		if err != nil {
			t.Fatalf("Read(%d) failed: %v", i, err)
		}
		if got != want {
			t.Errorf("Read(%d) = %q, want %q", i, got, want)
		}
	}
}

func TestSaveOverwrites(t *testing.T) {
	s := NewStore()
	_ = s.Save(2, "first")
	_ = s.Save(2, "second")

	got, _ := s.Read(2)
	if got != "second" {
		t.Errorf("expected last write to win, got %q", got)
	}
}

func TestUnsetReadsEmpty(t *testing.T) {
	s := NewStore()
	got, err := s.Read(4)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got != "" {
		t.Errorf("unset register should read empty, got %q", got)
	}
}

func TestClearAll(t *testing.T) {
	s := NewStore()
	for i := 0; i < Count; i++ {
		_ = s.Save(i, "x")
	}

	s.ClearAll()

	for i := 0; i < Count; i++ {
		if got, _ := s.Read(i); got != "" {
			t.Errorf("register %d = %q after ClearAll", i, got)
		}
	}
}

func TestOutOfRange(t *testing.T) {
	s := NewStore()
	_ = s.Save(0, "keep")

	for _, i := range []int{-1, Count, 99} {
		if err := s.Save(i, "bad"); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Save(%d) error = %v, want ErrIndexOutOfRange", i, err)
		}
		if _, err := s.Read(i); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Read(%d) error = %v, want ErrIndexOutOfRange", i, err)
		}
	}

	snap := s.Snapshot()
	if snap[0] != "keep" {
		t.Errorf("out-of-range save corrupted register 0: %q", snap[0])
	}
	for i := 1; i < Count; i++ {
		if snap[i] != "" {
			t.Errorf("register %d unexpectedly set to %q", i, snap[i])
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for n := 0; n < 200; n++ {
				i := (w + n) % Count
				_ = s.Save(i, "v")
				_, _ = s.Read(i)
			}
		}(w)
	}
	wg.Wait()

	for i, v := range s.Snapshot() {
		if v != "v" {
			t.Errorf("register %d = %q, want %q", i, v, "v")
		}
	}
}
