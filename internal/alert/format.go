package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event Event) ([]byte, error) {
	title := fmt.Sprintf("chaingate: %s", event.Type)
	if event.Killswitch && event.Type != TypeRestore {
		title += " (kill-switch active)"
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": title,
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Mechanism:* %s", event.Mechanism)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Identifier:* %s", event.Identifier)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Side:* %s", event.Side)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	action := "trigger"
	if event.Type == TypeRestore {
		action = "resolve"
	}

	payload := map[string]any{
		"event_action": action,
		"dedup_key":    "chaingate-" + event.Mechanism,
		"payload": map[string]any{
			"summary":  fmt.Sprintf("chaingate %s: %s %s", event.Type, event.Mechanism, event.Identifier),
			"severity": severityFor(event.Type),
			"source":   "chaingate",
			"custom_details": map[string]any{
				"mechanism":  event.Mechanism,
				"kind":       event.Kind,
				"identifier": event.Identifier,
				"side":       event.Side,
				"reason":     event.Reason,
				"scope":      event.Scope,
				"killswitch": event.Killswitch,
			},
		},
	}
	return json.Marshal(payload)
}

func severityFor(typ string) string {
	switch typ {
	case TypeKillswitch:
		return "critical"
	case TypeDeny:
		return "error"
	case TypeBypass:
		return "warning"
	default:
		return "info"
	}
}
