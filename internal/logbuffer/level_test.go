package logbuffer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"Basic", LevelBasic},
		{"rowlevel", LevelRowlevel},
		{" ERROR ", LevelError},
		{"4", LevelDetailed},
		{"0", LevelNothing},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "warn", "7", "-1"} {
		_, err := ParseLevel(bad)
		assert.Error(t, err, bad)
	}
}

func TestLevel_Visible(t *testing.T) {
	assert.True(t, LevelError.Visible(LevelBasic))
	assert.True(t, LevelBasic.Visible(LevelBasic))
	assert.False(t, LevelDebug.Visible(LevelBasic))
	assert.False(t, LevelError.Visible(LevelNothing))
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "Detailed", LevelDetailed.String())
	assert.Equal(t, "Level(42)", Level(42).String())
}

func TestEvent_JSONLevelAsCode(t *testing.T) {
	b, err := json.Marshal(Event{Message: "m", Level: LevelMinimal, TimeStamp: 5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"m","level":"Minimal","ts_ms":5}`, string(b))

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(`{"message":"x","level":5}`), &ev))
	assert.Equal(t, LevelDebug, ev.Level)

	assert.Error(t, json.Unmarshal([]byte(`{"level":"loud"}`), &ev))
}
