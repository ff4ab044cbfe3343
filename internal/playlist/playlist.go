// Package playlist produces an endless shuffled sequence of catalog tracks,
// one independent sequence per listener.
package playlist

import (
	"context"
	"io"
	"math/rand/v2"
	"time"

	"github.com/satindergrewal/shuffleradio/internal/catalog"
)

// Sequencer plays every track of a catalog snapshot once in random order,
// then takes a fresh snapshot and reshuffles.
type Sequencer struct {
	catalog *catalog.Catalog
	retry   time.Duration
	rng     *rand.Rand
	working []catalog.TrackID
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithRetry makes an empty catalog block and poll every d instead of ending
// the sequence. Zero keeps the default of ending it.
func WithRetry(d time.Duration) Option {
	return func(s *Sequencer) { s.retry = d }
}

// WithRand sets the shuffle source.
func WithRand(r *rand.Rand) Option {
	return func(s *Sequencer) { s.rng = r }
}

// New returns a sequencer over c.
func New(c *catalog.Catalog, opts ...Option) *Sequencer {
	s := &Sequencer{catalog: c}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// Next pops the next track, refilling from the catalog when the current
// cycle is used up.
func (s *Sequencer) Next(ctx context.Context) (catalog.TrackID, error) {
	for len(s.working) == 0 {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		s.refill()
		if len(s.working) > 0 {
			break
		}
		if s.retry <= 0 {
			return "", io.EOF
		}

		t := time.NewTimer(s.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}

	last := len(s.working) - 1
	id := s.working[last]
	s.working = s.working[:last]
	return id, nil
}

func (s *Sequencer) refill() {
	s.catalog.Range(func(id catalog.TrackID) bool {
		s.working = append(s.working, id)
		return true
	})
	s.rng.Shuffle(len(s.working), func(i, j int) {
		s.working[i], s.working[j] = s.working[j], s.working[i]
	})
}

func (s *Sequencer) Close() error {
	s.working = nil
	return nil
}
