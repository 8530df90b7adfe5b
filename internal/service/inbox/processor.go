package inbox

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tensormd/repops/internal/domain"
)

// MessageSource pulls inbound messages from the reply mailbox. The IMAP
// session itself lives behind this interface; UIDs must be stable across
// fetches of the same mailbox.
type MessageSource interface {
	Fetch(ctx context.Context, since time.Time) ([]domain.InboundMessage, error)
}

// Repository persists processed-message markers and links replies to
// targets.
type Repository interface {
	IsProcessed(ctx context.Context, uid string) (bool, error)
	MarkProcessed(ctx context.Context, m *domain.ProcessedMessage) error
	TargetByEmail(ctx context.Context, email string) (*domain.Target, error)
	LogEvent(ctx context.Context, e *domain.Event) error
}

// Router applies a classified reply to the target lifecycle.
type Router interface {
	RouteReply(ctx context.Context, targetID string, c domain.Classification) error
}

// SuppressionWriter adds opt-out registry entries.
type SuppressionWriter interface {
	SuppressEmailAndDomain(ctx context.Context, email, reason string) error
}

// Stats summarizes one inbox run.
type Stats struct {
	Seen      int `json:"seen"`
	Processed int `json:"processed"`
	OptOuts   int `json:"optouts"`
	Yes       int `json:"yes"`
	Questions int `json:"questions"`
	Later     int `json:"later"`
	Unknown   int `json:"unknown"`
}

// Processor polls the mailbox, classifies replies, and routes them. Every
// message's UID is recorded before any side effect so a crashed run never
// double-applies a reply.
type Processor struct {
	source      MessageSource
	repo        Repository
	router      Router
	suppression SuppressionWriter
	lookback    time.Duration
	now         func() time.Time
}

// NewProcessor builds the inbox processor. lookbackDays bounds how far back
// each run searches the mailbox.
func NewProcessor(source MessageSource, repo Repository, router Router, suppression SuppressionWriter, lookbackDays int) *Processor {
	if lookbackDays <= 0 {
		lookbackDays = 14
	}
	return &Processor{
		source:      source,
		repo:        repo,
		router:      router,
		suppression: suppression,
		lookback:    time.Duration(lookbackDays) * 24 * time.Hour,
		now:         time.Now,
	}
}

// Process runs one inbox pass against the configured source. Per-message
// failures after the marker write are logged and skipped so one bad
// message cannot wedge the mailbox.
func (p *Processor) Process(ctx context.Context) (Stats, error) {
	if p.source == nil {
		return Stats{}, fmt.Errorf("no message source configured")
	}
	since := p.now().UTC().Add(-p.lookback)
	messages, err := p.source.Fetch(ctx, since)
	if err != nil {
		return Stats{}, fmt.Errorf("fetching inbox: %w", err)
	}
	return p.ProcessBatch(ctx, messages)
}

// ProcessBatch runs the same pipeline over messages delivered by a relay
// webhook instead of the configured source.
func (p *Processor) ProcessBatch(ctx context.Context, messages []domain.InboundMessage) (Stats, error) {
	var stats Stats
	stats.Seen = len(messages)

	for _, msg := range messages {
		if msg.UID == "" {
			continue
		}
		done, err := p.repo.IsProcessed(ctx, msg.UID)
		if err != nil {
			return stats, fmt.Errorf("checking processed marker for uid %s: %w", msg.UID, err)
		}
		if done {
			continue
		}

		body := msg.Body
		if msg.HTML {
			body = StripHTML(body)
		}
		from := FromAddress(msg.From)
		classification := Classify(body)

		// Marker first: once this row exists the message is never
		// reprocessed, even if the side effects below fail.
		marker := &domain.ProcessedMessage{
			ID:             uuid.NewString(),
			UID:            msg.UID,
			FromEmail:      from,
			Subject:        msg.Subject,
			Classification: classification,
			CreatedAt:      p.now().UTC(),
		}
		if err := p.repo.MarkProcessed(ctx, marker); err != nil {
			return stats, fmt.Errorf("recording processed marker for uid %s: %w", msg.UID, err)
		}

		if err := p.apply(ctx, from, msg.Subject, classification); err != nil {
			log.Printf("[inbox] uid %s: %v", msg.UID, err)
		}

		switch classification {
		case domain.ReplyOptOut:
			stats.OptOuts++
		case domain.ReplyYes:
			stats.Yes++
		case domain.ReplyQuestion:
			stats.Questions++
		case domain.ReplyLater:
			stats.Later++
		default:
			stats.Unknown++
		}
		stats.Processed++
	}

	log.Printf("[inbox] run: seen=%d processed=%d optouts=%d yes=%d", stats.Seen, stats.Processed, stats.OptOuts, stats.Yes)
	return stats, nil
}

func (p *Processor) apply(ctx context.Context, from, subject string, c domain.Classification) error {
	if c == domain.ReplyOptOut {
		if err := p.suppression.SuppressEmailAndDomain(ctx, from, "inbox_optout"); err != nil {
			return fmt.Errorf("suppressing %s: %w", from, err)
		}
	}

	target, err := p.repo.TargetByEmail(ctx, from)
	if err != nil {
		return fmt.Errorf("looking up target for %s: %w", from, err)
	}
	if target == nil {
		// Opt-outs from unknown senders still landed in the registry above.
		return nil
	}

	if len(subject) > 200 {
		subject = subject[:200]
	}
	ev := &domain.Event{
		ID:       uuid.NewString(),
		TargetID: target.ID,
		Type:     domain.EventReply,
		Meta: map[string]string{
			"classification": string(c),
			"subject":        subject,
		},
		CreatedAt: p.now().UTC(),
	}
	if err := p.repo.LogEvent(ctx, ev); err != nil {
		return fmt.Errorf("logging reply event for target %s: %w", target.ID, err)
	}

	if err := p.router.RouteReply(ctx, target.ID, c); err != nil {
		return fmt.Errorf("routing reply for target %s: %w", target.ID, err)
	}
	return nil
}
