package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event AlertEvent) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event AlertEvent) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event AlertEvent) ([]byte, error) {
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("codesentry: %s detected", event.Type),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Entity:* %s", event.Entity)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*File:* %s", event.File)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Detail:* %s", detail(event))},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event AlertEvent) ([]byte, error) {
	severity := "warning"
	if event.Type == EventError {
		severity = "error"
	}

	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("codesentry %s: %s", event.Type, event.Entity),
			"severity": severity,
			"source":   "codesentry",
			"custom_details": map[string]any{
				"file":       event.File,
				"entity":     event.Entity,
				"old_digest": event.OldDigest,
				"new_digest": event.NewDigest,
				"message":    event.Message,
			},
		},
	}
	return json.Marshal(payload)
}

func detail(event AlertEvent) string {
	if event.Type == EventChange {
		return fmt.Sprintf("%s -> %s", event.OldDigest, event.NewDigest)
	}
	return event.Message
}
