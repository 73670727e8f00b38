// Package adapter bridges the bot pipeline with the page platform: it
// classifies inbound webhook requests, coordinates conversation-control
// handoff, runs bot turns, and converts outbound activities into platform
// content calls.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/pagebridge/pagebridge/internal/activity"
	"github.com/pagebridge/pagebridge/internal/handoff"
	"github.com/pagebridge/pagebridge/internal/platform"
)

var (
	// ErrInvalidArgument marks caller contract violations detected before any
	// side effect.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotSupported is returned for operations the page platform
	// integration deliberately does not implement.
	ErrNotSupported = errors.New("not supported by the page platform integration")
	// ErrSignatureMismatch is returned when webhook payload authentication
	// fails.
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
)

const (
	maxBodyBytes    int64 = 1 << 20 // 1 MiB
	signatureHeader       = "X-Hub-Signature-256"
)

// signatureValidator is implemented by platform clients that authenticate
// webhook payloads.
type signatureValidator interface {
	ValidateSignature(body []byte, header string) error
}

// requestClassifier produces the tagged classification for an inbound request.
type requestClassifier interface {
	ClassifyRequest(r *http.Request, body []byte) platform.Classification
}

// Adapter is the protocol adapter core. It composes the platform client and
// the handoff recognizer; the bot pipeline is passed per request, never
// embedded.
type Adapter struct {
	logger     *slog.Logger
	client     platform.Client
	recognizer handoff.Recognizer
}

// New creates an Adapter with the given logger, platform client, and handoff
// recognizer. A nil recognizer disables handoff recognition.
func New(log *slog.Logger, client platform.Client, recognizer handoff.Recognizer) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger:     log.With(slog.String("component", "adapter")),
		client:     client,
		recognizer: recognizer,
	}
}

// ProcessRequest classifies an inbound webhook request and dispatches it.
// Verification requests are answered directly on the response writer; event
// requests run through handoff recognition and the bot pipeline. Internal
// classification and handoff failures degrade to logging and do not surface
// as errors; ErrSignatureMismatch is the only authentication error returned.
func (a *Adapter) ProcessRequest(ctx context.Context, r *http.Request, w http.ResponseWriter, bot Bot) error {
	if r == nil {
		return fmt.Errorf("%w: request is required", ErrInvalidArgument)
	}
	if w == nil {
		return fmt.Errorf("%w: response writer is required", ErrInvalidArgument)
	}
	if bot == nil {
		return fmt.Errorf("%w: bot is required", ErrInvalidArgument)
	}
	if a.client == nil {
		return fmt.Errorf("adapter platform client not configured")
	}

	// Verification requests may not carry a valid payload body, so the query
	// check happens before any read or parse.
	var body []byte
	if !r.URL.Query().Has(platform.QueryHubMode) {
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			a.logger.Warn("read webhook body failed", slog.Any("error", err))
			return nil
		}
		body = payload
		if validator, ok := a.client.(signatureValidator); ok {
			if err := validator.ValidateSignature(body, r.Header.Get(signatureHeader)); err != nil {
				a.logger.Warn("webhook signature rejected", slog.Any("error", err))
				return ErrSignatureMismatch
			}
		}
	}

	classifier, ok := a.client.(requestClassifier)
	if !ok {
		return fmt.Errorf("adapter platform client cannot classify requests")
	}
	cls := classifier.ClassifyRequest(r, body)

	switch cls.Kind {
	case platform.EventVerifyWebhook:
		return a.client.VerifyWebhook(ctx, r, w)
	case platform.EventIntervention, platform.EventAction:
		// Control events from the platform's agent tooling bypass handoff
		// recognition.
		if cls.Activity != nil {
			a.runTurn(ctx, bot, *cls.Activity)
		}
		return nil
	case platform.EventContentImported:
		if cls.Activity != nil {
			a.dispatchContent(ctx, bot, *cls.Activity)
		}
		return nil
	default:
		a.logger.Warn("unclassified webhook event dropped")
		return nil
	}
}

// dispatchContent runs handoff recognition on imported content, performs the
// transfer when requested, and delivers the activity to the bot unless the
// verdict routes exclusively to the agent. The transfer always completes
// before the bot turn for the same activity.
func (a *Adapter) dispatchContent(ctx context.Context, bot Bot, item activity.Activity) {
	verdict := handoff.TargetNone
	if a.recognizer != nil {
		verdict = a.recognizer.Recognize(item)
	}
	if verdict != handoff.TargetNone {
		data, err := activity.GetChannelData(item)
		if err != nil {
			a.logger.Warn("handoff skipped", slog.Any("error", err))
		} else if _, err := a.Handoff(ctx, verdict, data.ThreadID); err != nil {
			a.logger.Warn("handoff transfer failed",
				slog.String("target", verdict.String()),
				slog.String("thread_id", data.ThreadID),
				slog.Any("error", err),
			)
		}
	}
	if verdict == handoff.TargetAgent {
		a.logger.Info("activity routed to agent, bot pipeline skipped", slog.String("activity_id", item.ID))
		return
	}
	a.runTurn(ctx, bot, item)
}

func (a *Adapter) runTurn(ctx context.Context, bot Bot, item activity.Activity) {
	turn := NewTurnContext(a, item)
	if err := bot.OnTurn(ctx, turn); err != nil {
		a.logger.Error("bot turn failed",
			slog.String("activity_id", item.ID),
			slog.String("activity_type", item.Type.String()),
			slog.Any("error", err),
		)
	}
}

// Handoff resolves the thread and switches its active controller. It returns
// false with a nil error when the thread does not exist; the switch itself is
// idempotent and safe to retry.
func (a *Adapter) Handoff(ctx context.Context, target handoff.Target, threadID string) (bool, error) {
	if target != handoff.TargetBot && target != handoff.TargetAgent {
		return false, fmt.Errorf("%w: handoff target must be bot or agent", ErrInvalidArgument)
	}
	if a.client == nil {
		return false, fmt.Errorf("adapter platform client not configured")
	}
	thread, err := a.client.GetThreadByID(ctx, threadID)
	if err != nil {
		return false, fmt.Errorf("handoff lookup: %w", err)
	}
	if thread == nil {
		a.logger.Warn("handoff thread not found",
			slog.String("thread_id", threadID),
			slog.String("target", target.String()),
		)
		return false, nil
	}
	controller := platform.ControllerBot
	if target == handoff.TargetAgent {
		controller = platform.ControllerAgent
	}
	if err := a.client.HandoffControl(ctx, controller, thread); err != nil {
		return false, fmt.Errorf("handoff transfer: %w", err)
	}
	return true, nil
}

// SendActivities forwards message activities to the platform in input order.
// Non-message activities and messages without channel data are skipped with a
// debug log; skipped activities produce no response entry. Each send is
// independent: responses accumulated before a failing send are returned with
// the error.
func (a *Adapter) SendActivities(ctx context.Context, activities []activity.Activity) ([]activity.ResourceResponse, error) {
	if activities == nil {
		return nil, fmt.Errorf("%w: activities are required", ErrInvalidArgument)
	}
	if a.client == nil {
		return nil, fmt.Errorf("adapter platform client not configured")
	}
	responses := make([]activity.ResourceResponse, 0, len(activities))
	for _, item := range activities {
		if !item.IsMessage() {
			a.logger.Debug("skip non-message activity",
				slog.String("activity_id", item.ID),
				slog.String("activity_type", item.Type.String()),
			)
			continue
		}
		data, ok := activity.TryChannelData(item)
		if !ok || data.SourceID == "" {
			a.logger.Debug("skip message without channel data", slog.String("activity_id", item.ID))
			continue
		}
		id, err := a.client.SendContent(ctx, item, data.SourceID)
		if err != nil {
			return responses, fmt.Errorf("send activity %s: %w", item.ID, err)
		}
		responses = append(responses, activity.ResourceResponse{ID: id})
	}
	return responses, nil
}

// UpdateActivity is not supported by the page platform integration.
func (a *Adapter) UpdateActivity(ctx context.Context, item activity.Activity) error {
	return fmt.Errorf("update activity: %w", ErrNotSupported)
}

// DeleteActivity is not supported by the page platform integration.
func (a *Adapter) DeleteActivity(ctx context.Context, activityID string) error {
	return fmt.Errorf("delete activity: %w", ErrNotSupported)
}
