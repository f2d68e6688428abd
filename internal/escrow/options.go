package escrow

import (
	"context"
	"log/slog"
	"time"

	"github.com/garnizeh/cleardeal/internal/models"
	"github.com/garnizeh/cleardeal/internal/notify"
)

// DefaultSettlementTimeout bounds a single settlement call made by an engine.
const DefaultSettlementTimeout = 30 * time.Second

// Publisher receives an event for every committed transition.
type Publisher interface {
	Publish(ctx context.Context, e notify.Event)
}

// SubmissionValidator checks a work submission beyond its basic shape.
type SubmissionValidator interface {
	Validate(ctx context.Context, s models.Submission) error
}

type options struct {
	logger            *slog.Logger
	publisher         Publisher
	now               func() time.Time
	submissions       SubmissionValidator
	settlementTimeout time.Duration
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithSubmissionValidator(v SubmissionValidator) Option {
	return func(o *options) { o.submissions = v }
}

// WithSettlementTimeout sets the per-call settlement deadline. Zero disables it
// and leaves the caller's context in charge.
func WithSettlementTimeout(d time.Duration) Option {
	return func(o *options) { o.settlementTimeout = d }
}

func buildOptions(opts []Option) options {
	o := options{
		logger:            slog.Default(),
		now:               time.Now,
		settlementTimeout: DefaultSettlementTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) publish(ctx context.Context, e notify.Event) {
	if o.publisher == nil {
		return
	}
	o.publisher.Publish(ctx, e)
}

func (o options) nowMillis() int64 {
	return o.now().UTC().UnixMilli()
}
