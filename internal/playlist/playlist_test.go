package playlist

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/satindergrewal/shuffleradio/internal/catalog"
)

func seeded() Option {
	return WithRand(rand.New(rand.NewPCG(1, 2)))
}

func TestEveryTrackOncePerCycle(t *testing.T) {
	ids := []catalog.TrackID{"a", "b", "c", "d", "e"}
	s := New(catalog.New(ids...), seeded())
	ctx := context.Background()

	for cycle := 0; cycle < 3; cycle++ {
		seen := make(map[catalog.TrackID]int)
		for range ids {
			id, err := s.Next(ctx)
			if err != nil {
				t.Fatalf("cycle %d: %v", cycle, err)
			}
			seen[id]++
		}
		for _, id := range ids {
			if seen[id] != 1 {
				t.Errorf("cycle %d: %s played %d times, want 1", cycle, id, seen[id])
			}
		}
	}
}

func TestShuffleVaries(t *testing.T) {
	ids := make([]catalog.TrackID, 20)
	for i := range ids {
		ids[i] = catalog.TrackID(string(rune('a' + i)))
	}
	s := New(catalog.New(ids...), seeded())
	ctx := context.Background()

	order := func() string {
		var out []byte
		for range ids {
			id, err := s.Next(ctx)
			if err != nil {
				t.Fatal(err)
			}
			out = append(out, id[0])
		}
		return string(out)
	}
	first, second := order(), order()
	if first == second {
		t.Errorf("two cycles produced the same order %q", first)
	}
}

func TestEmptyCatalogEnds(t *testing.T) {
	s := New(catalog.New())
	if _, err := s.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Next on empty catalog = %v, want EOF", err)
	}
}

func TestEmptyCatalogRetry(t *testing.T) {
	c := catalog.New()
	s := New(c, WithRetry(5*time.Millisecond))

	go func() {
		time.Sleep(20 * time.Millisecond)
		c.Add("late.mp3")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	id, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if id != "late.mp3" {
		t.Errorf("Next = %q, want late.mp3", id)
	}
}

func TestEmptyCatalogRetryHonoursContext(t *testing.T) {
	s := New(catalog.New(), WithRetry(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := s.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next = %v, want deadline exceeded", err)
	}
}

func TestRemovedTrackLeavesNextCycle(t *testing.T) {
	c := catalog.New("a", "b", "c")
	s := New(c, seeded())
	ctx := context.Background()

	first, err := s.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	c.Remove(first)

	// The rest of the current cycle is unaffected.
	for i := 0; i < 2; i++ {
		if _, err := s.Next(ctx); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 4; i++ {
		id, err := s.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if id == first {
			t.Errorf("removed track %s played again", first)
		}
	}
}

func TestAddedTrackJoinsNextCycle(t *testing.T) {
	c := catalog.New("a")
	s := New(c, seeded())
	ctx := context.Background()
	if _, err := s.Next(ctx); err != nil {
		t.Fatal(err)
	}
	c.Add("b")
	seen := map[catalog.TrackID]bool{}
	for i := 0; i < 2; i++ {
		id, err := s.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		seen[id] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Errorf("second cycle = %v, want a and b", seen)
	}
}
