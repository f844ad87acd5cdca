// Package alerting carries the one operator-facing critical event class of
// the engine: a conversation-state update that failed after the provider
// already sent the message. The contract is a structured log record at the
// CRITICAL level containing the fixed marker; Slack fan-out is best-effort
// on top of it.
package alerting

import (
	"context"
	"log/slog"
)

// LevelCritical is the distinguished severity for post-send inconsistencies.
// It sits above slog.LevelError and renders as "CRITICAL" (see LevelNames).
const LevelCritical = slog.Level(12)

// CriticalUpdateFailedMarker is the fixed textual marker matched by the
// out-of-band alerting pipeline. Do not change without updating the matcher
// configuration.
const CriticalUpdateFailedMarker = "final conversation update failed"

// ReplaceLevelName maps the custom CRITICAL level to its display name.
// Install as a ReplaceAttr function on the process slog handler.
func ReplaceLevelName(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level >= LevelCritical {
			a.Value = slog.StringValue("CRITICAL")
		}
	}
	return a
}

// CriticalEvent is everything the operator needs to repair the record by
// hand: the identity of the conversation, the provider message that DID go
// out, and the fields the failed update should have written.
type CriticalEvent struct {
	ConversationID    string
	PrimaryChannel    string
	ProviderMessageID string
	ThreadID          string
	ChannelMethod     string
	CompanyID         string
	ProjectID         string
	ProcessingTimeMS  int64
	UpdateError       error
}

// EmitCritical writes the CRITICAL log record with the fixed marker and
// fans out to the notifier (nil-safe). Never returns an error: the message
// must still be settled as success regardless of what happens here.
func EmitCritical(ctx context.Context, notifier *Notifier, ev CriticalEvent) {
	slog.LogAttrs(ctx, LevelCritical, CriticalUpdateFailedMarker,
		slog.String("conversation_id", ev.ConversationID),
		slog.String("primary_channel", ev.PrimaryChannel),
		slog.String("provider_message_id", ev.ProviderMessageID),
		slog.String("thread_id", ev.ThreadID),
		slog.String("channel_method", ev.ChannelMethod),
		slog.String("company_id", ev.CompanyID),
		slog.String("project_id", ev.ProjectID),
		slog.Int64("processing_time_ms", ev.ProcessingTimeMS),
		slog.String("error", errString(ev.UpdateError)),
	)
	notifier.NotifyCritical(ctx, ev)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
