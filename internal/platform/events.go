// Package platform integrates with the page messaging platform: it classifies
// inbound webhook payloads, performs the subscription-verification handshake,
// and exposes the REST client used for outbound content and thread control.
package platform

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/pagebridge/pagebridge/internal/activity"
)

// Webhook verification query parameters sent by the platform during the
// subscription-validation handshake.
const (
	QueryHubMode        = "hub.mode"
	QueryHubVerifyToken = "hub.verify_token"
	QueryHubChallenge   = "hub.challenge"
)

// EventKind classifies an inbound webhook request.
type EventKind string

const (
	EventVerifyWebhook   EventKind = "verify_webhook"
	EventIntervention    EventKind = "intervention"
	EventAction          EventKind = "action"
	EventContentImported EventKind = "content_imported"
	EventUnknown         EventKind = "unknown"
)

// String returns the event kind as a plain string.
func (k EventKind) String() string {
	return string(k)
}

// Classification is the tagged result of classifying an inbound request:
// the event kind plus the normalized activity when the payload carried one.
type Classification struct {
	Kind     EventKind
	Activity *activity.Activity
}

// webhookEnvelope is the page platform's webhook payload shape.
type webhookEnvelope struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	Event    string          `json:"event"`
	ThreadID string          `json:"thread_id"`
	SourceID string          `json:"source_id"`
	Message  *webhookMessage `json:"message,omitempty"`
}

type webhookMessage struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

const envelopeObjectPage = "page"

// ClassifyPayload inspects a raw webhook body and produces a Classification.
// Malformed or unrecognized payloads classify as EventUnknown with no
// activity; classification never fails.
func ClassifyPayload(body []byte) Classification {
	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Classification{Kind: EventUnknown}
	}
	if !strings.EqualFold(strings.TrimSpace(envelope.Object), envelopeObjectPage) || len(envelope.Entry) == 0 {
		return Classification{Kind: EventUnknown}
	}
	entry := envelope.Entry[0]
	kind := parseEventKind(entry.Event)
	if kind == EventUnknown {
		return Classification{Kind: EventUnknown}
	}
	return Classification{Kind: kind, Activity: entryActivity(kind, entry)}
}

func parseEventKind(raw string) EventKind {
	switch EventKind(strings.ToLower(strings.TrimSpace(raw))) {
	case EventIntervention:
		return EventIntervention
	case EventAction:
		return EventAction
	case EventContentImported:
		return EventContentImported
	default:
		return EventUnknown
	}
}

func entryActivity(kind EventKind, entry webhookEntry) *activity.Activity {
	data := activity.ChannelData{
		SourceID: strings.TrimSpace(entry.SourceID),
		ThreadID: strings.TrimSpace(entry.ThreadID),
	}
	if entry.Message == nil {
		if data.SourceID == "" && data.ThreadID == "" {
			return nil
		}
		a := activity.Activity{
			ID:          uuid.NewString(),
			Type:        activity.TypeEvent,
			ChannelData: data.AsMap(),
		}
		return &a
	}
	a := activity.Activity{
		ID:          strings.TrimSpace(entry.Message.ID),
		Text:        entry.Message.Text,
		ChannelData: data.AsMap(),
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if kind == EventContentImported {
		a.Type = activity.TypeMessage
	} else {
		a.Type = activity.TypeEvent
	}
	return &a
}
