package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRedactPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/github/12/s3cret", "/github/12/[Filtered]"},
		{"/github/commit_feed", "/github/commit_feed"},
		{"/github/12/", "/github/12/"},
		{"/teams/feed", "/teams/feed"},
		{"/commit_feed", "/commit_feed"},
	}
	for _, tt := range tests {
		if got := RedactPath(tt.path); got != tt.want {
			t.Errorf("RedactPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestUpdateRequestAttrs(t *testing.T) {
	ctx := WithRequestAttrs(context.Background(), &RequestAttrs{Method: "POST", Path: "/p", IP: "1.2.3.4"})
	ctx = UpdateRequestAttrs(ctx, "42", "")
	ctx = UpdateRequestAttrs(ctx, "", "commit")

	attrs := GetRequestAttrs(ctx)
	if attrs.TeamID != "42" || attrs.Feed != "commit" || attrs.Method != "POST" || attrs.IP != "1.2.3.4" {
		t.Errorf("attrs = %+v", attrs)
	}
	if n := len(requestAttrs(ctx)); n != 5 {
		t.Errorf("len(requestAttrs) = %d, want 5", n)
	}
	if requestAttrs(context.Background()) != nil {
		t.Error("requestAttrs without attrs should be nil")
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "10.0.0.1:1234", nil, "10.0.0.1"},
		{"ipv6 remote addr", "[::1]:1234", nil, "::1"},
		{"real ip header", "10.0.0.1:1234", map[string]string{"X-Real-IP": "203.0.113.7"}, "203.0.113.7"},
		{"forwarded chain", "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.2"}, "203.0.113.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ExtractClientIP(r); got != tt.want {
				t.Errorf("ExtractClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for in, want := range tests {
		if got := decodeLogLevel(in); got != want {
			t.Errorf("decodeLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWrapErrorKeepsStack(t *testing.T) {
	if WrapError(nil, "msg") != nil {
		t.Error("WrapError(nil) should be nil")
	}
	err := WrapError(errors.New("boom"), "failed to load team")
	if !strings.Contains(err.Error(), "failed to load team") || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Error() = %q", err.Error())
	}
	if len(marshalStack(err)) == 0 {
		t.Error("expected stack frames on wrapped error")
	}
}

func TestLoggerAddsRequestAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo)

	ctx := WithRequestAttrs(context.Background(), &RequestAttrs{Method: "POST", Path: "/github/7/[Filtered]", IP: "10.0.0.1"})
	ctx = UpdateRequestAttrs(ctx, "7", "")
	logger.WarnContext(ctx, "invalid webhook token", slog.String("security_event", string(SecurityEventBadWebhookToken)))
	logger.Debug("not written")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %s", len(lines), buf.String())
	}
	var record map[string]any
	if err := json.Unmarshal(lines[0], &record); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	for key, want := range map[string]string{
		"msg":            "invalid webhook token",
		"method":         "POST",
		"path":           "/github/7/[Filtered]",
		"ip":             "10.0.0.1",
		"team_id":        "7",
		"security_event": "bad_webhook_token",
	} {
		if record[key] != want {
			t.Errorf("record[%q] = %v, want %q", key, record[key], want)
		}
	}
	if _, ok := record["feed"]; ok {
		t.Error("empty feed should not be logged")
	}
}

func TestLoggerFormatsErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo).With(slog.String("component", "relay"))

	logger.Error("relay stopped", slog.Any("error", WrapError(errors.New("eof"), "subscribe")))

	var record struct {
		Component string `json:"component"`
		Error     struct {
			Msg   string       `json:"msg"`
			Trace []stackFrame `json:"trace"`
		} `json:"error"`
	}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if record.Component != "relay" {
		t.Errorf("component = %q, want relay", record.Component)
	}
	if !strings.Contains(record.Error.Msg, "eof") {
		t.Errorf("error msg = %q", record.Error.Msg)
	}
	if len(record.Error.Trace) == 0 {
		t.Error("expected a stack trace on the logged error")
	}
}
