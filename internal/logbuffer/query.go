package logbuffer

// Predicate selects buffer lines.
type Predicate func(BufferLine) bool

// Query selects a window of lines.
//
// From is exclusive and To inclusive; a zero To means no upper bound. When
// ChannelIDs is empty every channel matches. Otherwise only the listed
// channels match, plus general lines if IncludeGeneral is set.
type Query struct {
	From           uint64
	To             uint64
	ChannelIDs     []string
	IncludeGeneral bool
	Match          Predicate
}

// Matches reports whether line falls inside the query window.
func (q Query) Matches(line BufferLine) bool {
	if line.Nr <= q.From {
		return false
	}
	if q.To > 0 && line.Nr > q.To {
		return false
	}
	if len(q.ChannelIDs) > 0 && !q.channelMatches(line.Event) {
		return false
	}
	return q.Match == nil || q.Match(line)
}

func (q Query) channelMatches(ev Event) bool {
	if ev.IsGeneral() {
		return q.IncludeGeneral
	}
	for _, id := range q.ChannelIDs {
		if id == ev.ChannelID {
			return true
		}
	}
	return false
}

// LinesRange returns the stored lines selected by q, oldest first.
func (b *Buffer) LinesRange(q Query) []BufferLine {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.collect(q.Matches)
}

// RemoveBefore drops lines whose timestamp is strictly less than ts.
func (b *Buffer) RemoveBefore(ts int64) int {
	return b.retain(func(line BufferLine) bool {
		return line.Event.TimeStamp >= ts
	})
}

// RemoveChannel drops the lines of the given channels.
func (b *Buffer) RemoveChannel(ids ...string) int {
	if len(ids) == 0 {
		return 0
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	return b.retain(func(line BufferLine) bool {
		_, ok := drop[line.Event.ChannelID]
		return !ok
	})
}

// RemoveGeneral drops the lines of the general channel.
func (b *Buffer) RemoveGeneral() int {
	return b.retain(func(line BufferLine) bool {
		return !line.Event.IsGeneral()
	})
}

// VisibleAt matches lines shown at the given filter level.
func VisibleAt(filter Level) Predicate {
	return func(line BufferLine) bool {
		return line.Event.Level.Visible(filter)
	}
}

// And matches lines accepted by every non-nil predicate. It returns nil when
// no predicate is set.
func And(preds ...Predicate) Predicate {
	var set []Predicate
	for _, p := range preds {
		if p != nil {
			set = append(set, p)
		}
	}
	switch len(set) {
	case 0:
		return nil
	case 1:
		return set[0]
	}
	return func(line BufferLine) bool {
		for _, p := range set {
			if !p(line) {
				return false
			}
		}
		return true
	}
}
