// Package bots provides bot pipeline implementations usable with the adapter.
package bots

import (
	"context"
	"log/slog"

	"github.com/pagebridge/pagebridge/internal/activity"
	"github.com/pagebridge/pagebridge/internal/adapter"
)

// EchoBot replies to every inbound message with its own text. It demonstrates
// the turn contract; real deployments plug in their own pipeline.
type EchoBot struct {
	logger *slog.Logger
}

// NewEchoBot creates an EchoBot with the given logger.
func NewEchoBot(log *slog.Logger) *EchoBot {
	if log == nil {
		log = slog.Default()
	}
	return &EchoBot{logger: log.With(slog.String("bot", "echo"))}
}

// OnTurn handles a single turn: message activities are echoed back, anything
// else is acknowledged silently.
func (b *EchoBot) OnTurn(ctx context.Context, turn *adapter.TurnContext) error {
	inbound := turn.Activity()
	if !inbound.IsMessage() {
		b.logger.Debug("ignoring non-message turn", slog.String("activity_type", inbound.Type.String()))
		return nil
	}
	data, ok := activity.TryChannelData(inbound)
	if !ok {
		b.logger.Debug("inbound message without channel data", slog.String("activity_id", inbound.ID))
		return nil
	}
	reply := activity.NewMessage("Echo: "+inbound.Text, data)
	_, err := turn.SendActivities(ctx, reply)
	return err
}
