package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	reset = "\033[0m"
	gray  = "\033[37m"
	cyan  = "\033[36m"
	white = "\033[97m"
)

var levelColors = map[slog.Level]string{
	slog.LevelDebug: "\033[35m",
	slog.LevelInfo:  "\033[32m",
	slog.LevelWarn:  "\033[33m",
	slog.LevelError: "\033[31m",
}

const redacted = "[REDACTED]"

// sensitiveKeys are matched as substrings of lowercased attribute keys.
var sensitiveKeys = []string{"password", "secret", "token", "hash", "authorization", "device_key"}

// PrettyHandler writes one colored key=value line per record for local runs.
type PrettyHandler struct {
	level  slog.Leveler
	color  bool
	w      io.Writer
	mu     *sync.Mutex
	prefix string
	preset []byte
}

// New builds the process handler. format "json" selects slog's JSON handler;
// anything else uses the console handler, uncolored when NO_COLOR is set.
func New(w io.Writer, level string, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	if strings.EqualFold(strings.TrimSpace(format), "json") {
		opts.ReplaceAttr = func(_ []string, a slog.Attr) slog.Attr {
			return redact(a)
		}
		return slog.NewJSONHandler(w, opts)
	}

	h := NewPrettyHandler(w, opts)
	h.color = os.Getenv("NO_COLOR") == ""
	return h
}

func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &PrettyHandler{level: level, color: true, w: w, mu: &sync.Mutex{}}
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var line bytes.Buffer

	h.paint(&line, gray, r.Time.Format("15:04:05.000"))
	line.WriteByte(' ')
	levelColor, ok := levelColors[r.Level]
	if !ok {
		levelColor = white
	}
	h.paint(&line, levelColor, padRight(r.Level.String(), 5))
	line.WriteByte(' ')
	h.paint(&line, white, r.Message)

	line.Write(h.preset)
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&line, h.prefix, a)
		return true
	})
	line.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(line.Bytes())
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var buf bytes.Buffer
	buf.Write(h.preset)
	for _, a := range attrs {
		h.appendAttr(&buf, h.prefix, a)
	}

	clone := *h
	clone.preset = buf.Bytes()
	return &clone
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func (h *PrettyHandler) appendAttr(buf *bytes.Buffer, prefix string, a slog.Attr) {
	a = redact(a)
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if a.Key != "" {
			groupPrefix += a.Key + "."
		}
		for _, member := range a.Value.Group() {
			h.appendAttr(buf, groupPrefix, member)
		}
		return
	}

	buf.WriteByte(' ')
	h.paint(buf, cyan, prefix+a.Key)
	buf.WriteByte('=')
	buf.WriteString(formatValue(a.Value))
}

func (h *PrettyHandler) paint(buf *bytes.Buffer, color string, text string) {
	if !h.color {
		buf.WriteString(text)
		return
	}
	buf.WriteString(color)
	buf.WriteString(text)
	buf.WriteString(reset)
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\n\"=") {
			return strconv.Quote(s)
		}
		return s
	default:
		return v.String()
	}
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func redact(a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return slog.String(a.Key, redacted)
		}
	}
	return a
}
