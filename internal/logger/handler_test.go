package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrettyHandlerRedactsSensitiveAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	log.Info("login", "email", "u@x.com", "password", "pw12345", "access_token", "abc.def.ghi")

	out := buf.String()
	require.Contains(t, out, "u@x.com")
	require.NotContains(t, out, "pw12345")
	require.NotContains(t, out, "abc.def.ghi")
	require.Contains(t, out, redacted)
}

func TestPrettyHandlerLevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	log.Info("hidden")
	log.Warn("shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}

func TestJSONHandlerRedacts(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(New(&buf, "debug", "json"))

	log.Debug("token rejected", "reason", "expired", "password_hash", "$2a$12$abc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "expired", line["reason"])
	require.Equal(t, redacted, line["password_hash"])
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestPrettyHandlerGroupsAndQuoting(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil)
	h.color = false
	log := slog.New(h).With("component", "auth").WithGroup("req")

	log.Warn("rejected", "reason", "bad token", slog.Group("user", "id", "42", "password", "pw"))

	out := buf.String()
	require.Contains(t, out, "WARN  rejected")
	require.Contains(t, out, "component=auth")
	require.Contains(t, out, `req.reason="bad token"`)
	require.Contains(t, out, "req.user.id=42")
	require.Contains(t, out, "req.user.password="+redacted)
	require.NotContains(t, out, "\033[")
}
