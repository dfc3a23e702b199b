package observability

import (
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

var sensitiveHeaders = []string{"Authorization", "Cookie", "Set-Cookie"}

func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
		BeforeSend:       scrubEvent,
	})
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// scrubEvent drops bearer tokens and request bodies before an event leaves
// the process. Auth bodies carry passwords and refresh tokens.
func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event == nil || event.Request == nil {
		return event
	}
	for name := range event.Request.Headers {
		for _, sensitive := range sensitiveHeaders {
			if strings.EqualFold(name, sensitive) {
				event.Request.Headers[name] = "[redacted]"
			}
		}
	}
	event.Request.Cookies = ""
	event.Request.Data = ""
	if strings.Contains(event.Request.QueryString, "access_token=") {
		event.Request.QueryString = "[redacted]"
	}
	return event
}
