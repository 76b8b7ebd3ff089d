package status

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/vayureader/vayu-cli/internal/domain"
)

// EventLine formats one live document event for the watch feed.
func EventLine(event domain.LiveEvent, at time.Time) string {
	s := newStyles()

	stamp := s.eventTime.Render(at.Format("15:04:05"))
	label := eventStyle(event.Type, s).Render(fmt.Sprintf("%-11s", string(event.Type)))

	summary := eventSummary(event.Data)
	if summary == "" {
		return stamp + " " + label
	}
	return stamp + " " + label + " " + s.detail.Render(summary)
}

// EventJSON is the machine readable form used by `watch --json`.
func EventJSON(event domain.LiveEvent, at time.Time) ([]byte, error) {
	return json.Marshal(struct {
		At   time.Time      `json:"at"`
		Type string         `json:"type"`
		Data map[string]any `json:"data,omitempty"`
	}{At: at.UTC(), Type: string(event.Type), Data: event.Data})
}

func eventStyle(eventType domain.LiveEventType, s styles) lipgloss.Style {
	switch eventType {
	case domain.LiveEventPDFAdded:
		return s.eventAdd
	case domain.LiveEventPDFUpdated:
		return s.eventEdit
	case domain.LiveEventPDFDeleted:
		return s.eventDrop
	default:
		return s.eventInfo
	}
}

// eventSummary prefers well known document fields and falls back to the
// sorted key list.
func eventSummary(data map[string]any) string {
	if len(data) == 0 {
		return ""
	}

	parts := make([]string, 0, 3)
	for _, key := range []string{"title", "name", "message"} {
		if value, ok := data[key].(string); ok && strings.TrimSpace(value) != "" {
			parts = append(parts, fmt.Sprintf("%q", value))
			break
		}
	}
	for _, key := range []string{"_id", "id"} {
		if value, ok := data[key]; ok {
			parts = append(parts, fmt.Sprintf("id=%v", value))
			break
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}

	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return "fields: " + strings.Join(keys, ",")
}
