// Package catalog keeps the live set of playable files under the music
// directory. The set is shared by every listener pipeline and mutated only by
// the watcher.
package catalog

import (
	"sort"
	"sync"
)

// TrackID identifies one playable file by its path.
type TrackID string

func (id TrackID) String() string { return string(id) }

// Catalog is a reader-writer locked set of TrackIDs.
type Catalog struct {
	mu     sync.RWMutex
	tracks map[TrackID]struct{}
}

// New creates a catalog holding the given ids.
func New(ids ...TrackID) *Catalog {
	c := &Catalog{tracks: make(map[TrackID]struct{}, len(ids))}
	for _, id := range ids {
		c.tracks[id] = struct{}{}
	}
	return c
}

// Add inserts an id. It reports whether the id was new.
func (c *Catalog) Add(id TrackID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tracks[id]; ok {
		return false
	}
	c.tracks[id] = struct{}{}
	return true
}

// Remove deletes an id. It reports whether the id was present.
func (c *Catalog) Remove(id TrackID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tracks[id]; !ok {
		return false
	}
	delete(c.tracks, id)
	return true
}

// RemovePrefix deletes every id under the given directory path.
func (c *Catalog) RemovePrefix(dir string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := dir + "/"
	n := 0
	for id := range c.tracks {
		if string(id) == dir || (len(id) > len(prefix) && string(id[:len(prefix)]) == prefix) {
			delete(c.tracks, id)
			n++
		}
	}
	return n
}

// Replace swaps the whole set, as done after a rescan.
func (c *Catalog) Replace(ids []TrackID) {
	tracks := make(map[TrackID]struct{}, len(ids))
	for _, id := range ids {
		tracks[id] = struct{}{}
	}
	c.mu.Lock()
	c.tracks = tracks
	c.mu.Unlock()
}

// Len returns the number of tracks.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tracks)
}

// Range calls fn for every id in path order while holding the read lock.
// Iteration stops when fn returns false. fn must not mutate the catalog.
func (c *Catalog) Range(fn func(TrackID) bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range c.sorted() {
		if !fn(id) {
			return
		}
	}
}

// Snapshot returns a sorted copy of the current ids. The copy is stale as
// soon as it is returned.
func (c *Catalog) Snapshot() []TrackID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sorted()
}

// sorted must be called with mu held.
func (c *Catalog) sorted() []TrackID {
	ids := make([]TrackID, 0, len(c.tracks))
	for id := range c.tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
