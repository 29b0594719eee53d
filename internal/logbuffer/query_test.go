package logbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nrs(lines []BufferLine) []uint64 {
	out := make([]uint64, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Nr)
	}
	return out
}

func channelBuffer() *Buffer {
	buf := NewBuffer(100)
	buf.AddEvent(Event{ChannelID: "job", Message: "1", Level: LevelBasic, TimeStamp: 10})
	buf.AddEvent(Event{ChannelID: "", Message: "2", Level: LevelError, TimeStamp: 20})
	buf.AddEvent(Event{ChannelID: "step", Message: "3", Level: LevelDebug, TimeStamp: 30})
	buf.AddEvent(Event{ChannelID: "job", Message: "4", Level: LevelDetailed, TimeStamp: 40})
	buf.AddEvent(Event{ChannelID: "other", Message: "5", Level: LevelMinimal, TimeStamp: 50})
	return buf
}

func TestLinesRange_Bounds(t *testing.T) {
	buf := channelBuffer()
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, nrs(buf.LinesRange(Query{})))
	assert.Equal(t, []uint64{3, 4, 5}, nrs(buf.LinesRange(Query{From: 2})))
	assert.Equal(t, []uint64{2, 3}, nrs(buf.LinesRange(Query{From: 1, To: 3})))
	assert.Empty(t, buf.LinesRange(Query{From: 5}))
}

func TestLinesRange_Channels(t *testing.T) {
	buf := channelBuffer()
	assert.Equal(t, []uint64{1, 4}, nrs(buf.LinesRange(Query{ChannelIDs: []string{"job"}})))
	assert.Equal(t, []uint64{1, 2, 4}, nrs(buf.LinesRange(Query{ChannelIDs: []string{"job"}, IncludeGeneral: true})))
	assert.Equal(t, []uint64{1, 3, 4}, nrs(buf.LinesRange(Query{ChannelIDs: []string{"job", "step"}})))
}

func TestLinesRange_LevelPredicate(t *testing.T) {
	buf := channelBuffer()
	got := buf.LinesRange(Query{Match: VisibleAt(LevelBasic)})
	assert.Equal(t, []uint64{1, 2, 5}, nrs(got))
	assert.Empty(t, buf.LinesRange(Query{Match: VisibleAt(LevelNothing)}))
}

func TestRemoveChannelAndGeneral(t *testing.T) {
	buf := channelBuffer()
	assert.Equal(t, 2, buf.RemoveChannel("job"))
	assert.Equal(t, 0, buf.RemoveChannel())
	assert.Equal(t, []uint64{2, 3, 5}, nrs(buf.Snapshot()))

	assert.Equal(t, 1, buf.RemoveGeneral())
	assert.Equal(t, []uint64{3, 5}, nrs(buf.Snapshot()))
	assert.Equal(t, uint64(5), buf.LastLineNr())
}

func TestRemoveBefore(t *testing.T) {
	buf := channelBuffer()
	assert.Equal(t, 0, buf.RemoveBefore(10))
	assert.Equal(t, 3, buf.RemoveBefore(31))
	require.Equal(t, 2, buf.Size())
	assert.Equal(t, []uint64{4, 5}, nrs(buf.Snapshot()))
}

func TestAnd(t *testing.T) {
	assert.Nil(t, And(nil, nil))
	only := VisibleAt(LevelBasic)
	assert.NotNil(t, And(nil, only))

	buf := channelBuffer()
	p := And(VisibleAt(LevelDetailed), func(l BufferLine) bool { return l.Event.ChannelID == "job" })
	assert.Equal(t, []uint64{1, 4}, nrs(buf.LinesRange(Query{Match: p})))
}
