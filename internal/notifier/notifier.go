// Package notifier runs one push invocation from the raw platform request to
// exactly one delivered content object.
package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"push_notify/internal/metrics"
	"push_notify/internal/model"
	"push_notify/internal/parser"
	"push_notify/internal/protocol/webpush"
	"push_notify/internal/utils/log"
)

const (
	DefaultDeadline = 25 * time.Second
	DefaultSound    = "glass.caf"
)

var ErrNoKeyMaterial = errors.New("notifier: key material is required")

type State int

const (
	StateReceived State = iota
	StateDecrypting
	StateParsing
	StateEnriching
	StateDelivered
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateDecrypting:
		return "decrypting"
	case StateParsing:
		return "parsing"
	case StateEnriching:
		return "enriching"
	case StateDelivered:
		return "delivered"
	default:
		return "unknown"
	}
}

type (
	// Enricher is split in two so a deadline can deliver the prepared tier
	// while augmentation is still running.
	Enricher interface {
		Prepare(ctx context.Context, decoded *model.DecodedNotification, subtitle string) *model.EnrichedNotification
		Augment(ctx context.Context, decoded *model.DecodedNotification, base model.EnrichedNotification) *model.EnrichedNotification
	}

	Option func(*Service)

	Service struct {
		keys     webpush.KeyMaterial
		enricher Enricher
		deadline time.Duration
		sound    string
		metrics  *metrics.Metrics
	}

	invocation struct {
		id      string
		state   State
		start   time.Time
		once    sync.Once
		deliver func(model.Content)
		metrics *metrics.Metrics
	}
)

func WithDeadline(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.deadline = d
		}
	}
}

func WithSound(sound string) Option {
	return func(s *Service) {
		s.sound = sound
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New fails when keys is nil: without key material no push can be decoded
// and the host must not start.
func New(keys webpush.KeyMaterial, enricher Enricher, opts ...Option) (*Service, error) {
	if keys == nil || keys.PrivateKey() == nil {
		return nil, ErrNoKeyMaterial
	}
	if enricher == nil {
		return nil, errors.New("notifier: enricher is required")
	}

	s := &Service{
		keys:     keys,
		enricher: enricher,
		deadline: DefaultDeadline,
		sound:    DefaultSound,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handle calls deliver exactly once before it returns. Undecryptable or
// unparsable pushes get req.Content back unchanged.
func (s *Service) Handle(ctx context.Context, req model.Request, deliver func(model.Content)) {
	inv := &invocation{
		id:      uuid.New().String(),
		state:   StateReceived,
		start:   time.Now(),
		deliver: deliver,
		metrics: s.metrics,
	}
	defer s.metrics.Begin()()
	defer func() {
		if r := recover(); r != nil {
			log.Error("push handling panicked", zap.String("invocation", inv.id), zap.Any("panic", r))
			inv.finish(metrics.OutcomePanic, req.Content.Clone())
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	inv.transition(StateDecrypting)
	plaintext, err := s.decrypt(req.UserInfo)
	if err != nil {
		log.Debug("push not decrypted", zap.String("invocation", inv.id), zap.Stringer("kind", webpush.KindOf(err)))
		inv.finish(decryptOutcome(err), req.Content.Clone())
		return
	}

	inv.transition(StateParsing)
	decoded, err := parser.Parse(plaintext)
	if err != nil {
		log.Debug("push not parsed", zap.String("invocation", inv.id), zap.Error(err))
		inv.finish(metrics.OutcomeParseError, req.Content.Clone())
		return
	}

	inv.transition(StateEnriching)
	base := s.enricher.Prepare(ctx, decoded, req.Subtitle())

	result := make(chan *model.EnrichedNotification, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("enrichment panicked", zap.String("invocation", inv.id), zap.Any("panic", r))
				result <- nil
			}
		}()
		result <- s.enricher.Augment(ctx, decoded, *base)
	}()

	select {
	case enriched := <-result:
		if enriched == nil {
			inv.finish(metrics.OutcomePanic, base.Apply(req.Content, s.sound))
			return
		}
		inv.finish(tier(enriched), enriched.Apply(req.Content, s.sound))
	case <-ctx.Done():
		log.Warn("enrichment deadline reached", zap.String("invocation", inv.id), zap.Duration("deadline", s.deadline))
		inv.finish(metrics.OutcomeTimeout, base.Apply(req.Content, s.sound))
	}
}

// HandleSync returns what Handle delivered.
func (s *Service) HandleSync(ctx context.Context, req model.Request) model.Content {
	var out model.Content
	s.Handle(ctx, req, func(c model.Content) {
		out = c
	})
	return out
}

func (s *Service) decrypt(userInfo map[string]any) ([]byte, error) {
	rec, err := webpush.ParseRecord(userInfo)
	if err != nil {
		return nil, err
	}
	return webpush.Decrypt(rec, s.keys)
}

func (inv *invocation) transition(next State) {
	log.Debug("push state",
		zap.String("invocation", inv.id),
		zap.Stringer("from", inv.state),
		zap.Stringer("to", next))
	inv.state = next
}

func (inv *invocation) finish(outcome string, content model.Content) {
	inv.once.Do(func() {
		inv.transition(StateDelivered)
		took := time.Since(inv.start)
		inv.metrics.Observe(outcome, took)
		log.Info("push delivered",
			zap.String("invocation", inv.id),
			zap.String("outcome", outcome),
			zap.Duration("took", took))
		inv.deliver(content)
	})
}

func decryptOutcome(err error) string {
	switch webpush.KindOf(err) {
	case webpush.KeyAgreementFailure:
		return metrics.OutcomeKeyAgreement
	case webpush.AuthenticationFailure:
		return metrics.OutcomeAuthentication
	default:
		return metrics.OutcomeMalformed
	}
}

func tier(n *model.EnrichedNotification) string {
	switch {
	case n.Rich():
		return metrics.OutcomeRich
	case n.Attachment != nil:
		return metrics.OutcomeAttachment
	default:
		return metrics.OutcomePlain
	}
}
