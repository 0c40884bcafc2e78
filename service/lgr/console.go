package lgr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fatih/color"
)

var levelColors = map[slog.Level]*color.Color{
	slog.LevelDebug: color.New(color.FgCyan),
	slog.LevelInfo:  color.New(color.FgGreen),
	slog.LevelWarn:  color.New(color.FgYellow),
	slog.LevelError: color.New(color.FgRed),
}

// ConsoleHandler writes one human readable line per record:
//
//	15:04:05.000 INFO message key=value
type ConsoleHandler struct {
	mu       *sync.Mutex
	out      io.Writer
	level    slog.Leveler
	useColor bool
	attrs    []slog.Attr
	groups   []string
}

func NewConsoleHandler(out io.Writer, level slog.Leveler, useColor bool) *ConsoleHandler {
	return &ConsoleHandler{
		mu:       &sync.Mutex{},
		out:      out,
		level:    level,
		useColor: useColor,
	}
}

func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	buf.WriteString(ts.Format("15:04:05.000"))
	buf.WriteByte(' ')
	buf.WriteString(h.levelString(r.Level))
	buf.WriteByte(' ')
	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		h.writeAttr(&buf, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&buf, h.qualify([]slog.Attr{a})[0])
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf.Bytes())
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(append([]slog.Attr{}, h.attrs...), h.qualify(attrs)...)
	return &c
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.groups = append(append([]string{}, h.groups...), name)
	return &c
}

func (h *ConsoleHandler) qualify(attrs []slog.Attr) []slog.Attr {
	if len(h.groups) == 0 {
		return attrs
	}
	prefix := ""
	for _, g := range h.groups {
		prefix += g + "."
	}
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = slog.Attr{Key: prefix + a.Key, Value: a.Value}
	}
	return out
}

func (h *ConsoleHandler) levelString(level slog.Level) string {
	s := level.String()
	if !h.useColor {
		return s
	}
	c, ok := levelColors[level]
	if !ok {
		return s
	}
	return c.Sprint(s)
}

func (h *ConsoleHandler) writeAttr(buf *bytes.Buffer, a slog.Attr) {
	a = replaceAttr(nil, a)
	if a.Equal(slog.Attr{}) {
		return
	}

	key := a.Key
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			// stack traces are only useful in the file sink
			if ga.Key == "trace" {
				continue
			}
			fmt.Fprintf(buf, " %s.%s=%v", key, ga.Key, ga.Value.Any())
		}
		return
	}
	fmt.Fprintf(buf, " %s=%v", key, v.Any())
}
