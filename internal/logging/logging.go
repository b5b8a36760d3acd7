package logging

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/mdobak/go-xerrors"
)

// SecurityEvent represents a security-related event type
type SecurityEvent string

const (
	SecurityEventMissingAuth     SecurityEvent = "missing_auth"
	SecurityEventBadBackendToken SecurityEvent = "bad_backend_token"
	SecurityEventBadWebhookToken SecurityEvent = "bad_webhook_token"
	SecurityEventUnknownTeam     SecurityEvent = "unknown_team"
	SecurityEventRateLimited     SecurityEvent = "rate_limited"
)

// RequestAttrs holds safe request context for logging
type RequestAttrs struct {
	Method string
	Path   string // with secrets redacted, see RedactPath
	IP     string
	TeamID string
	Feed   string
}

type contextKey string

const requestAttrsKey contextKey = "requestAttrs"

type stackFrame struct {
	Func   string `json:"func"`
	Source string `json:"source"`
	Line   int    `json:"line"`
}

// Initialize installs the JSON logger built by New as the slog default.
// The level comes from LOGGING_LEVEL (debug, info, warn, error; default info).
func Initialize() {
	slog.SetDefault(New(os.Stdout, decodeLogLevel(os.Getenv("LOGGING_LEVEL"))))
}

// New returns a JSON logger writing to w. Errors are rendered with their
// stack trace, and records logged with a request context carry the request
// attributes stored by WithRequestAttrs.
func New(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr,
	})
	return slog.New(contextHandler{handler})
}

// contextHandler appends the request attributes found in the record's
// context.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(requestAttrs(ctx)...)
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

func decodeLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
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

// replaceAttr automatically formats errors with stack traces
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindAny:
		switch v := a.Value.Any().(type) {
		case error:
			a.Value = fmtErr(v)
		}
	}
	return a
}

// marshalStack extracts stack frames from the error
func marshalStack(err error) []stackFrame {
	trace := xerrors.StackTrace(err)
	if len(trace) == 0 {
		return nil
	}

	frames := trace.Frames()
	s := make([]stackFrame, len(frames))

	for i, v := range frames {
		s[i] = stackFrame{
			Source: filepath.Join(
				filepath.Base(filepath.Dir(v.File)),
				filepath.Base(v.File),
			),
			Func: filepath.Base(v.Function),
			Line: v.Line,
		}
	}

	return s
}

// fmtErr returns a slog.Value with keys `msg` and `trace`
func fmtErr(err error) slog.Value {
	var groupValues []slog.Attr

	groupValues = append(groupValues, slog.String("msg", err.Error()))

	frames := marshalStack(err)
	if frames != nil {
		groupValues = append(groupValues, slog.Any("trace", frames))
	}

	return slog.GroupValue(groupValues...)
}

// WrapError wraps an error with a message and captures stack trace
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	// Wrap with stack trace, then create a new error with the combined message
	wrapped := xerrors.WithStackTrace(err, 1)
	return xerrors.Newf("%s: %v", msg, wrapped)
}

// WithRequestAttrs adds request attributes to context
func WithRequestAttrs(ctx context.Context, attrs *RequestAttrs) context.Context {
	return context.WithValue(ctx, requestAttrsKey, attrs)
}

// GetRequestAttrs retrieves request attributes from context
func GetRequestAttrs(ctx context.Context) *RequestAttrs {
	attrs, _ := ctx.Value(requestAttrsKey).(*RequestAttrs)
	return attrs
}

// UpdateRequestAttrs returns a context whose request attributes carry the
// team id and feed. Empty values keep what is already set.
func UpdateRequestAttrs(ctx context.Context, teamID, feed string) context.Context {
	attrs := GetRequestAttrs(ctx)
	if attrs == nil {
		attrs = &RequestAttrs{}
	}
	newAttrs := *attrs
	if teamID != "" {
		newAttrs.TeamID = teamID
	}
	if feed != "" {
		newAttrs.Feed = feed
	}
	return WithRequestAttrs(ctx, &newAttrs)
}

// requestAttrs renders the request attributes in ctx, if any.
func requestAttrs(ctx context.Context) []slog.Attr {
	attrs := GetRequestAttrs(ctx)
	if attrs == nil {
		return nil
	}

	fields := []slog.Attr{
		slog.String("method", attrs.Method),
		slog.String("path", attrs.Path),
		slog.String("ip", attrs.IP),
	}
	if attrs.TeamID != "" {
		fields = append(fields, slog.String("team_id", attrs.TeamID))
	}
	if attrs.Feed != "" {
		fields = append(fields, slog.String("feed", attrs.Feed))
	}
	return fields
}

// RedactedValue replaces secrets in logs and error reports.
const RedactedValue = "[Filtered]"

// RedactPath hides the team token in webhook paths
// (/github/{team_id}/{team_token}). Other paths are returned unchanged.
func RedactPath(path string) string {
	parts := strings.Split(path, "/")
	// "", "github", team_id, team_token
	if len(parts) == 4 && parts[1] == "github" && parts[3] != "" && parts[2] != "commit_feed" {
		parts[3] = RedactedValue
		return strings.Join(parts, "/")
	}
	return path
}

// ExtractClientIP returns the client address. X-Real-IP is trusted because
// the RealIP middleware rewrites it for every request.
func ExtractClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// LogSecurityEvent logs a WARN-level security event. Request attributes
// come from ctx.
func LogSecurityEvent(ctx context.Context, event SecurityEvent, msg string) {
	slog.WarnContext(ctx, msg, slog.String("security_event", string(event)))
}

// LogErrorWithStatus logs an ERROR-level message with the response status
// and the error.
func LogErrorWithStatus(ctx context.Context, status int, msg string, err error) {
	args := []any{slog.Int("status", status)}
	if err != nil {
		args = append(args, slog.Any("error", err))
	}
	slog.ErrorContext(ctx, msg, args...)
}
