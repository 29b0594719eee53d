package capture

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func collectLines() (*lineWriter, *[]string) {
	var got []string
	return &lineWriter{emit: func(s string) { got = append(got, s) }}, &got
}

func TestLineWriter_SplitsAcrossWrites(t *testing.T) {
	w, got := collectLines()

	_, _ = w.Write([]byte("hel"))
	_, _ = w.Write([]byte("lo\r\nwor"))
	_, _ = w.Write([]byte("ld\n\npartial"))
	assert.Equal(t, []string{"hello", "world", ""}, *got)

	w.Flush()
	assert.Equal(t, []string{"hello", "world", "", "partial"}, *got)

	w.Flush()
	assert.Len(t, *got, 4)
}

func TestLineWriter_ReportsFullLength(t *testing.T) {
	w, _ := collectLines()
	n, err := w.Write([]byte("a\nb\nc"))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestLineWriter_SplitsOverlongLines(t *testing.T) {
	w, got := collectLines()
	long := strings.Repeat("x", maxPendingLine+10)
	_, _ = w.Write([]byte(long))
	assert.Len(t, *got, 1)
	assert.Len(t, (*got)[0], maxPendingLine)

	w.Flush()
	assert.Len(t, *got, 2)
	assert.Equal(t, strings.Repeat("x", 10), (*got)[1])
}
