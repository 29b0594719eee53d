package logbuffer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Level is a log level. Lower values are more important; a line is shown
// at a filter level when its own level is at or below it.
type Level int

const (
	LevelNothing Level = iota
	LevelError
	LevelMinimal
	LevelBasic
	LevelDetailed
	LevelDebug
	LevelRowlevel
)

var levelCodes = [...]string{
	LevelNothing:  "Nothing",
	LevelError:    "Error",
	LevelMinimal:  "Minimal",
	LevelBasic:    "Basic",
	LevelDetailed: "Detailed",
	LevelDebug:    "Debug",
	LevelRowlevel: "Rowlevel",
}

func (l Level) String() string {
	if l < LevelNothing || int(l) >= len(levelCodes) {
		return "Level(" + strconv.Itoa(int(l)) + ")"
	}
	return levelCodes[l]
}

// Visible reports whether a line at level l passes the filter level.
func (l Level) Visible(filter Level) bool {
	if filter == LevelNothing {
		return false
	}
	return l <= filter
}

// IsError reports whether l is the error level.
func (l Level) IsError() bool {
	return l == LevelError
}

// ParseLevel accepts a level code (case-insensitive) or its numeric value.
func ParseLevel(s string) (Level, error) {
	s = strings.TrimSpace(s)
	for i, code := range levelCodes {
		if strings.EqualFold(code, s) {
			return Level(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < len(levelCodes) {
		return Level(n), nil
	}
	return LevelNothing, fmt.Errorf("unknown log level %q", s)
}

func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *Level) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int
		if err2 := json.Unmarshal(b, &n); err2 != nil {
			return err
		}
		s = strconv.Itoa(n)
	}
	parsed, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
