package loadgen

import (
	"context"

	"github.com/okian/courtside/internal/adapters/mq/subscriber"
	"github.com/okian/courtside/internal/domain/model"
)

// Sink delivers generated writes to the server.
type Sink interface {
	SendProfile(ctx context.Context, p model.Player) error
	SendEvent(ctx context.Context, ev model.ProgressEvent) (Outcome, error)
}

// Publisher is the part of subscriber.Publisher the redis sink uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, v any) error
}

// RedisSink publishes profiles and events to the subscriber channels.
// Publishing is fire and forget, so outcomes are always OutcomeSent.
type RedisSink struct {
	pub             Publisher
	profileChannel  string
	progressChannel string
}

// NewRedisSink creates a sink over pub. Empty channel names fall back to the
// subscriber defaults.
func NewRedisSink(pub Publisher, profileChannel, progressChannel string) *RedisSink {
	if profileChannel == "" {
		profileChannel = subscriber.DefaultProfileChannel
	}
	if progressChannel == "" {
		progressChannel = subscriber.DefaultProgressChannel
	}
	return &RedisSink{pub: pub, profileChannel: profileChannel, progressChannel: progressChannel}
}

// SendProfile publishes p on the profile channel.
func (r *RedisSink) SendProfile(ctx context.Context, p model.Player) error {
	return r.pub.Publish(ctx, r.profileChannel, subscriber.NewProfileMessage(p))
}

// SendEvent publishes ev on the progress channel.
func (r *RedisSink) SendEvent(ctx context.Context, ev model.ProgressEvent) (Outcome, error) {
	if err := r.pub.Publish(ctx, r.progressChannel, subscriber.NewProgressMessage(ev, nil)); err != nil {
		return "", err
	}
	return OutcomeSent, nil
}
