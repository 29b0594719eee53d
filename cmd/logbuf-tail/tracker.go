package main

import (
	"maps"
	"slices"
)

// seenWindow bounds how many shown line numbers are remembered above the
// floor. Live lines only arrive out of order while producers race, so a line
// far below the newest one shown will not turn up later.
const seenWindow = 4096

// lineTracker remembers which lines were shown. Every matching line at or
// below floor is accounted for; shown lines above it are kept in seen.
// Filters leave gaps in the numbering, so the floor only moves on a replay
// cutoff from the server or when seen outgrows its window.
type lineTracker struct {
	floor uint64
	live  bool
	seen  map[uint64]struct{}
}

// show records nr and reports whether it is new.
func (lt *lineTracker) show(nr uint64) bool {
	if nr <= lt.floor {
		return false
	}
	if _, ok := lt.seen[nr]; ok {
		return false
	}
	if lt.seen == nil {
		lt.seen = make(map[uint64]struct{})
	}
	lt.seen[nr] = struct{}{}
	if len(lt.seen) > seenWindow {
		lt.compact()
	}
	return true
}

// replayed takes the cutoff from a status frame: the server has sent every
// matching line at or below it.
func (lt *lineTracker) replayed(cutoff uint64) {
	lt.live = true
	if cutoff <= lt.floor {
		return
	}
	lt.floor = cutoff
	for nr := range lt.seen {
		if nr <= cutoff {
			delete(lt.seen, nr)
		}
	}
}

// compact keeps the newer half of seen and raises floor past the rest.
func (lt *lineTracker) compact() {
	nrs := slices.Sorted(maps.Keys(lt.seen))
	old := nrs[:len(nrs)-seenWindow/2]
	for _, nr := range old {
		delete(lt.seen, nr)
	}
	lt.floor = old[len(old)-1]
}

// resume returns the from_line for the next session. ok is false until a
// session has gone live.
func (lt *lineTracker) resume() (fromLine uint64, ok bool) {
	return lt.floor, lt.live
}
