// Package sentry provides data scrubbing utilities for Sentry events
// to ensure sensitive information is not transmitted to the error tracking service.
package sentry

import (
	"net/url"
	"strings"

	"github.com/getsentry/sentry-go"

	"github.com/codejam/backend/internal/logging"
)

// sensitiveHeaders are HTTP headers that should be redacted from Sentry events.
var sensitiveHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	"Set-Cookie":    true,
}

// sensitiveKeys are field names that may contain sensitive data in tags or breadcrumb metadata.
var sensitiveKeys = map[string]bool{
	"token":         true,
	"team_token":    true,
	"secret":        true,
	"backend_token": true,
	"authorization": true,
	"cookie":        true,
}

// ScrubEvent removes sensitive data from a Sentry event before it is sent.
// It redacts sensitive headers and webhook tokens in URLs, strips request
// bodies, and scrubs tags.
func ScrubEvent(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if event.Request != nil {
		for header := range event.Request.Headers {
			if sensitiveHeaders[header] {
				event.Request.Headers[header] = logging.RedactedValue
			}
		}
		event.Request.URL = redactURL(event.Request.URL)
		// Webhook bodies and admin payloads are never needed to debug a crash.
		event.Request.Data = ""
	}

	// Transaction names are "METHOD /path".
	if method, path, ok := strings.Cut(event.Transaction, " "); ok {
		event.Transaction = method + " " + logging.RedactPath(path)
	}

	for key := range event.Tags {
		if sensitiveKeys[key] {
			event.Tags[key] = logging.RedactedValue
		}
	}
	if u, ok := event.Tags["url"]; ok {
		event.Tags["url"] = redactURL(u)
	}

	for i := range event.Breadcrumbs {
		for key, value := range event.Breadcrumbs[i].Data {
			if sensitiveKeys[key] {
				event.Breadcrumbs[i].Data[key] = logging.RedactedValue
				continue
			}
			if s, ok := value.(string); ok && key == "url" {
				event.Breadcrumbs[i].Data[key] = redactURL(s)
			}
		}
	}

	return event
}

// ScrubTransaction applies the same scrubbing logic to transaction events.
func ScrubTransaction(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	return ScrubEvent(event, hint)
}

// redactURL hides the webhook token in an absolute or relative URL.
func redactURL(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return logging.RedactedValue
	}
	redacted := logging.RedactPath(u.Path)
	if redacted == u.Path {
		return raw
	}
	u.Path = redacted
	u.RawPath = redacted
	return u.String()
}
