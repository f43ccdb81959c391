// Package subscriber consumes profile and progress messages from Redis
// pub/sub and hands them to the leaderboard service.
package subscriber

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	service "github.com/okian/courtside/internal/app"
	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/pkg/logger"
	"github.com/okian/courtside/pkg/metrics"
)

const (
	defaultMaxAttempts = 4
	defaultBackoff     = 25 * time.Millisecond
)

// Handler is the part of the service the subscriber drives.
type Handler interface {
	ApplyEvent(ctx context.Context, req service.IngestRequest) (service.IngestResult, error)
	UpdateProfile(ctx context.Context, upd model.ProfileUpdate) (model.Entry, error)
}

// Message is one delivery from a channel.
type Message struct {
	Channel string
	Payload []byte
}

// Source delivers messages until it is closed.
type Source interface {
	Messages(ctx context.Context) (<-chan Message, error)
	Close() error
}

// Subscriber dispatches messages by channel.
type Subscriber struct {
	source          Source
	handler         Handler
	profileChannel  string
	progressChannel string
	maxAttempts     int
	backoff         time.Duration
	logger          logger.Logger

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// Option configures a Subscriber.
type Option func(*Subscriber)

// WithChannels overrides the profile and progress channel names.
func WithChannels(profile, progress string) Option {
	return func(s *Subscriber) {
		if profile != "" {
			s.profileChannel = profile
		}
		if progress != "" {
			s.progressChannel = progress
		}
	}
}

// WithRetry bounds redelivery of writes that lost every optimistic retry.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *Subscriber) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
		if backoff > 0 {
			s.backoff = backoff
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Subscriber) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Subscriber reading src.
func New(src Source, h Handler, opts ...Option) *Subscriber {
	s := &Subscriber{
		source:          src,
		handler:         h,
		profileChannel:  DefaultProfileChannel,
		progressChannel: DefaultProgressChannel,
		maxAttempts:     defaultMaxAttempts,
		backoff:         defaultBackoff,
		stopChan:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("subscriber")
	}
	return s
}

// Channels returns the channel names the subscriber dispatches.
func (s *Subscriber) Channels() []string { return []string{s.profileChannel, s.progressChannel} }

// Start begins consuming in the background.
func (s *Subscriber) Start(ctx context.Context) error {
	msgs, err := s.source.Messages(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.wg.Add(1)
	go s.loop(ctx, msgs)
	s.logger.Info(ctx, "subscriber started",
		logger.String("profile_channel", s.profileChannel),
		logger.String("progress_channel", s.progressChannel),
	)
	return nil
}

func (s *Subscriber) loop(ctx context.Context, msgs <-chan Message) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if err := s.Handle(ctx, msg); err != nil {
				s.logger.Warn(ctx, "message not processed",
					logger.String("channel", msg.Channel),
					logger.Error(err),
				)
			}
		}
	}
}

// Handle processes one message.
func (s *Subscriber) Handle(ctx context.Context, msg Message) error {
	var (
		result string
		err    error
	)
	switch msg.Channel {
	case s.profileChannel:
		result, err = s.handleProfile(ctx, msg.Payload)
	case s.progressChannel:
		result, err = s.handleProgress(ctx, msg.Payload)
	default:
		result, err = metrics.ResultRejected, fmt.Errorf("%w: %s", ErrUnknownChannel, msg.Channel)
	}
	metrics.RecordSubscriberMessage(msg.Channel, result)
	return err
}

func (s *Subscriber) handleProfile(ctx context.Context, payload []byte) (string, error) {
	var m ProfileMessage
	if err := Decode(payload, &m); err != nil {
		return metrics.ResultRejected, err
	}
	p, err := m.Player()
	if err != nil {
		return metrics.ResultRejected, err
	}
	err = s.retry(ctx, func() error {
		_, err := s.handler.UpdateProfile(ctx, model.ProfileUpdate{Player: p})
		return err
	})
	return resultOf(err, metrics.ResultApplied), err
}

func (s *Subscriber) handleProgress(ctx context.Context, payload []byte) (string, error) {
	var m ProgressMessage
	if err := Decode(payload, &m); err != nil {
		return metrics.ResultRejected, err
	}
	// Producers on the progress channel own the player directory.
	req := service.IngestRequest{Event: m.Event(), ProfileAuthority: true}
	if m.Player != nil {
		p, err := m.Player.Player()
		if err != nil {
			return metrics.ResultRejected, err
		}
		req.Player = &p
	}

	var res service.IngestResult
	err := s.retry(ctx, func() error {
		var err error
		res, err = s.handler.ApplyEvent(ctx, req)
		return err
	})
	ok := metrics.ResultApplied
	switch {
	case res.Duplicate:
		ok = metrics.ResultDuplicate
	case res.Ignored:
		ok = metrics.ResultIgnored
	}
	return resultOf(err, ok), err
}

func resultOf(err error, ok string) string {
	switch {
	case err == nil:
		return ok
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrUnknownPlayer):
		return metrics.ResultRejected
	default:
		return metrics.ResultFailed
	}
}

// retry reruns fn while it fails with ErrConcurrentUpdateExhausted, up to
// maxAttempts with doubling backoff.
func (s *Subscriber) retry(ctx context.Context, fn func() error) error {
	wait := s.backoff
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err = fn(); !errors.Is(err, service.ErrConcurrentUpdateExhausted) {
			return err
		}
		if attempt == s.maxAttempts {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait *= 2
	}
	return err
}

// Stop ends consumption and closes the source.
func (s *Subscriber) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopChan)
		err = s.source.Close()
	})
	s.wg.Wait()
	return err
}

// RedisSource subscribes to Redis pub/sub channels.
type RedisSource struct {
	client   *redis.Client
	channels []string

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisSource creates a source for channels on client.
func NewRedisSource(client *redis.Client, channels ...string) *RedisSource {
	return &RedisSource{client: client, channels: channels}
}

// Messages subscribes and forwards every message until the subscription or
// ctx ends.
func (r *RedisSource) Messages(ctx context.Context) (<-chan Message, error) {
	ps := r.client.Subscribe(ctx, r.channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	done := make(chan struct{})
	r.mu.Lock()
	r.pubsub = ps
	r.done = done
	r.mu.Unlock()

	out := make(chan Message)
	go func() {
		defer close(out)
		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- Message{Channel: m.Channel, Payload: []byte(m.Payload)}:
				case <-ctx.Done():
					return
				case <-done:
					return
				}
			}
		}
	}()
	return out, nil
}

// Close ends the subscription.
func (r *RedisSource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubsub == nil {
		return nil
	}
	close(r.done)
	err := r.pubsub.Close()
	r.pubsub = nil
	return err
}

// Publisher publishes msgpack-encoded messages to Redis.
type Publisher struct {
	client *redis.Client
}

// NewPublisher creates a Publisher over client.
func NewPublisher(client *redis.Client) *Publisher { return &Publisher{client: client} }

// Publish encodes v and publishes it on channel.
func (p *Publisher) Publish(ctx context.Context, channel string, v any) error {
	b, err := Encode(v)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, channel, b).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}
