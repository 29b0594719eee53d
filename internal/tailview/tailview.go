// Package tailview renders buffer lines for a terminal or a pipe.
package tailview

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/ericbosch/kettle-logbuffer/internal/logbuffer"
)

// Renderer writes buffer lines to an output stream.
type Renderer interface {
	Render(line logbuffer.BufferLine) error
}

type styles struct {
	nr, channel, errorLvl, minimal, basic, verbose lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		nr:       r.NewStyle().Foreground(lipgloss.Color("240")),
		channel:  r.NewStyle().Foreground(lipgloss.Color("39")).Faint(true),
		errorLvl: r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		minimal:  r.NewStyle().Foreground(lipgloss.Color("255")).Bold(true),
		basic:    r.NewStyle(),
		verbose:  r.NewStyle().Foreground(lipgloss.Color("245")).Faint(true),
	}
}

func (s styles) forLevel(l logbuffer.Level) lipgloss.Style {
	switch {
	case l.IsError():
		return s.errorLvl
	case l == logbuffer.LevelMinimal:
		return s.minimal
	case l <= logbuffer.LevelBasic:
		return s.basic
	default:
		return s.verbose
	}
}

// TextRenderer prints lines in the Kettle layout, colored by level when the
// writer is a terminal.
type TextRenderer struct {
	w           io.Writer
	layout      logbuffer.Layout
	styles      styles
	showChannel bool
}

// NewTextRenderer returns a TextRenderer writing to w. Color is detected
// from w; pass noColor to force plain output.
func NewTextRenderer(w io.Writer, layout logbuffer.Layout, showChannel, noColor bool) *TextRenderer {
	r := lipgloss.NewRenderer(w)
	if noColor {
		r.SetColorProfile(termenv.Ascii)
	}
	return &TextRenderer{w: w, layout: layout, styles: newStyles(r), showChannel: showChannel}
}

func (r *TextRenderer) Render(line logbuffer.BufferLine) error {
	var prefix strings.Builder
	prefix.WriteString(r.styles.nr.Render(fmt.Sprintf("%6d", line.Nr)))
	prefix.WriteByte(' ')
	if r.showChannel {
		ch := line.Event.ChannelID
		if ch == logbuffer.GeneralChannel {
			ch = "-"
		}
		prefix.WriteString(r.styles.channel.Render("[" + shortChannel(ch) + "]"))
		prefix.WriteByte(' ')
	}

	style := r.styles.forLevel(line.Event.Level)
	for _, text := range strings.Split(r.layout.Format(line.Event), "\n") {
		if _, err := fmt.Fprintln(r.w, prefix.String()+style.Render(text)); err != nil {
			return err
		}
	}
	return nil
}

// shortChannel trims UUID channel IDs to their first group.
func shortChannel(id string) string {
	if len(id) == 36 && strings.Count(id, "-") == 4 {
		return id[:8]
	}
	return id
}

// JSONRenderer prints each line as one JSON object per line.
type JSONRenderer struct {
	enc *json.Encoder
}

// NewJSONRenderer returns a Renderer that writes JSON lines to w.
func NewJSONRenderer(w io.Writer) *JSONRenderer {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONRenderer{enc: enc}
}

func (r *JSONRenderer) Render(line logbuffer.BufferLine) error {
	return r.enc.Encode(line)
}
