package tailview

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericbosch/kettle-logbuffer/internal/logbuffer"
)

func TestTextRenderer_PlainMultiLine(t *testing.T) {
	var out bytes.Buffer
	r := NewTextRenderer(&out, logbuffer.Layout{Location: time.UTC}, true, true)

	err := r.Render(logbuffer.BufferLine{Nr: 7, Event: logbuffer.Event{
		Message:   "a\nb",
		Subject:   "s",
		ChannelID: "job",
		Level:     logbuffer.LevelError,
	}})
	require.NoError(t, err)

	want := "     7 [job] 1970/01/01 00:00:00 - s - ERROR : a\n" +
		"     7 [job] 1970/01/01 00:00:00 - s - ERROR : b\n"
	assert.Equal(t, want, out.String())
}

func TestTextRenderer_GeneralAndUUIDChannels(t *testing.T) {
	var out bytes.Buffer
	r := NewTextRenderer(&out, logbuffer.Layout{OmitTime: true}, true, true)

	require.NoError(t, r.Render(logbuffer.BufferLine{Nr: 1, Event: logbuffer.Event{Message: "x"}}))
	require.NoError(t, r.Render(logbuffer.BufferLine{Nr: 2, Event: logbuffer.Event{
		Message:   "y",
		ChannelID: "1b4e28ba-2fa1-11d2-883f-0016d3cca427",
	}}))

	assert.Equal(t, "     1 [-] x\n     2 [1b4e28ba] y\n", out.String())
}

func TestTextRenderer_WithoutChannel(t *testing.T) {
	var out bytes.Buffer
	r := NewTextRenderer(&out, logbuffer.Layout{OmitTime: true}, false, true)
	require.NoError(t, r.Render(logbuffer.BufferLine{Nr: 3, Event: logbuffer.Event{Message: "z", ChannelID: "c"}}))
	assert.Equal(t, "     3 z\n", out.String())
}

func TestJSONRenderer(t *testing.T) {
	var out bytes.Buffer
	r := NewJSONRenderer(&out)

	line := logbuffer.BufferLine{Nr: 9, Event: logbuffer.Event{
		Message:   "<done>",
		ChannelID: "job",
		Level:     logbuffer.LevelDetailed,
		TimeStamp: 1234,
	}}
	require.NoError(t, r.Render(line))
	assert.Contains(t, out.String(), `"<done>"`)
	assert.Contains(t, out.String(), `"level":"Detailed"`)

	var got logbuffer.BufferLine
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, line, got)
}
