// Package notify hands freshly computed premiums to outside consumers.
// Delivery outcomes are reported back to the caller only for logging.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/logging"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/metrics"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/cache"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/server/premium"
)

// EventPremium is the event name of a premium message.
const EventPremium = "premium"

// Direction tells whether domestic trades above or below the reference.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// DirectionOf classifies a premium rate.
func DirectionOf(rate decimal.Decimal) Direction {
	switch rate.Sign() {
	case 1:
		return DirectionUp
	case -1:
		return DirectionDown
	default:
		return DirectionFlat
	}
}

// Message is the data contract handed to external consumers.
type Message struct {
	Event     string         `json:"event"`
	Direction Direction      `json:"direction"`
	SentAt    time.Time      `json:"sent_at"`
	Premium   premium.Result `json:"premium"`
}

// NewMessage wraps a premium result.
func NewMessage(res premium.Result) Message {
	return Message{
		Event:     EventPremium,
		Direction: DirectionOf(res.PremiumRate),
		SentAt:    time.Now().UTC(),
		Premium:   res,
	}
}

// Notifier receives computed premiums.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, res premium.Result) error
}

// Deliver calls n and records the outcome in metrics.
func Deliver(ctx context.Context, n Notifier, res premium.Result) error {
	err := n.Notify(ctx, res)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordNotification(n.Name(), status)
	return err
}

// LogNotifier writes every premium to the log.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a log notifier.
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

// Name returns "log".
func (l *LogNotifier) Name() string { return "log" }

// Notify logs res.
func (l *LogNotifier) Notify(_ context.Context, res premium.Result) error {
	l.logger.Info("Premium",
		"symbol", res.Symbol,
		"rate", res.PremiumRate.String(),
		"amount", res.PremiumAmount.String(),
		"direction", string(DirectionOf(res.PremiumRate)),
		"domestic_source", res.HighestDomesticSource,
		"foreign_source", res.BaseForeignSource,
		"exchange_rate", res.ExchangeRate.String())
	return nil
}

// RedisPublisher publishes each premium as a JSON Message on a channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher creates a publisher on channel.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Name returns "redis".
func (r *RedisPublisher) Name() string { return "redis" }

// Notify publishes res.
func (r *RedisPublisher) Notify(ctx context.Context, res premium.Result) error {
	data, err := json.Marshal(NewMessage(res))
	if err != nil {
		return fmt.Errorf("encode premium message: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", r.channel, err)
	}
	return nil
}

// PremiumRecorder persists premiums.
type PremiumRecorder interface {
	Insert(ctx context.Context, res premium.Result) error
}

// Recorder stores every premium through a PremiumRecorder.
type Recorder struct {
	store PremiumRecorder
}

// NewRecorder creates a recorder.
func NewRecorder(store PremiumRecorder) *Recorder {
	return &Recorder{store: store}
}

// Name returns "recorder".
func (r *Recorder) Name() string { return "recorder" }

// Notify inserts res.
func (r *Recorder) Notify(ctx context.Context, res premium.Result) error {
	return r.store.Insert(ctx, res)
}

// Multi forwards to every notifier and joins their errors.
type Multi []Notifier

// Name returns "multi".
func (m Multi) Name() string { return "multi" }

// Notify calls each notifier in order; one failure does not stop the rest.
func (m Multi) Notify(ctx context.Context, res premium.Result) error {
	var errs []error
	for _, n := range m {
		if err := Deliver(ctx, n, res); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Threshold forwards only premiums whose magnitude reaches a limit, at
// most once per symbol and direction in each time bucket.
type Threshold struct {
	next   Notifier
	limit  decimal.Decimal
	bucket time.Duration
	cache  *cache.Cache
	now    func() time.Time
}

// NewThreshold wraps next. A zero bucket disables de-duplication.
func NewThreshold(next Notifier, limit decimal.Decimal, bucket time.Duration, c *cache.Cache) *Threshold {
	return &Threshold{
		next:   next,
		limit:  limit.Abs(),
		bucket: bucket,
		cache:  c,
		now:    time.Now,
	}
}

// Name returns the wrapped notifier's name.
func (t *Threshold) Name() string { return t.next.Name() }

// Notify forwards res when it crosses the limit and was not yet forwarded
// in the current bucket.
func (t *Threshold) Notify(ctx context.Context, res premium.Result) error {
	if res.PremiumRate.Abs().LessThan(t.limit) {
		return nil
	}
	if t.bucket > 0 && t.cache != nil {
		slot := t.now().UnixNano() / int64(t.bucket)
		key := fmt.Sprintf("notify:%s:%s:%d", res.Symbol, DirectionOf(res.PremiumRate), slot)
		if !t.cache.MarkOnce(ctx, key, t.bucket) {
			return nil
		}
	}
	return t.next.Notify(ctx, res)
}
