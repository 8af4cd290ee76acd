// Package enrich augments a decoded notification with best-effort remote
// data: the badge count, the icon as a local attachment and, when the owning
// account is known, the sender identity for a message-style presentation.
// No step is required for delivery.
package enrich

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"push_notify/internal/badge"
	"push_notify/internal/model"
	"push_notify/internal/utils/log"
)

type (
	AccountStore interface {
		FindByAccessToken(ctx context.Context, token string) (*model.Account, error)
	}

	RemoteLookup interface {
		GetNotification(ctx context.Context, acc *model.Account, id int64) (*model.RemoteNotification, error)
	}

	Config struct {
		FetchTimeout      time.Duration
		LookupTimeout     time.Duration
		MaxImageBytes     int64
		MaxImageDimension uint
		TempDir           string
		HTTPClient        *http.Client
	}

	Pipeline struct {
		cfg      Config
		counter  badge.Counter
		accounts AccountStore
		remote   RemoteLookup
		images   *ImageFetcher
	}
)

func (c Config) withDefaults() Config {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 5 * time.Second
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = 5 * time.Second
	}
	if c.MaxImageBytes <= 0 {
		c.MaxImageBytes = 5 << 20
	}
	if c.MaxImageDimension == 0 {
		c.MaxImageDimension = 512
	}
	return c
}

// New wires the pipeline. accounts and remote may be nil, in which case the
// rich tier is never attempted.
func New(cfg Config, counter badge.Counter, accounts AccountStore, remote RemoteLookup) *Pipeline {
	cfg = cfg.withDefaults()
	if counter == nil {
		counter = badge.NewMemoryCounter()
	}
	return &Pipeline{
		cfg:      cfg,
		counter:  counter,
		accounts: accounts,
		remote:   remote,
		images:   NewImageFetcher(cfg.HTTPClient, cfg.TempDir, cfg.MaxImageBytes, cfg.MaxImageDimension),
	}
}

// Enrich always returns a notification carrying at least the decoded title
// and body. subtitle is the relay's free-text hint.
func (p *Pipeline) Enrich(ctx context.Context, decoded *model.DecodedNotification, subtitle string) *model.EnrichedNotification {
	return p.Augment(ctx, decoded, *p.Prepare(ctx, decoded, subtitle))
}

// Prepare builds the plain tier and takes the badge number. It does no
// network I/O besides the counter.
func (p *Pipeline) Prepare(ctx context.Context, decoded *model.DecodedNotification, subtitle string) *model.EnrichedNotification {
	out := &model.EnrichedNotification{
		Title:    decoded.Title,
		Subtitle: subtitle,
		Body:     decoded.Body,
	}

	n, err := p.counter.Increment(ctx)
	if err != nil {
		log.Warn("badge increment failed", zap.Error(err))
	}
	out.Badge = n
	return out
}

// Augment tries the attachment and rich tiers on top of base and returns a
// new value; base is never modified.
func (p *Pipeline) Augment(ctx context.Context, decoded *model.DecodedNotification, base model.EnrichedNotification) *model.EnrichedNotification {
	out := base
	if decoded.Icon == "" {
		return &out
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	attachment, err := p.images.Fetch(fetchCtx, decoded.Icon)
	cancel()
	if err != nil {
		log.Debug("icon fetch failed", zap.Int64("notification_id", decoded.NotificationID), zap.Error(err))
		return &out
	}

	remote := p.resolve(ctx, decoded)
	if remote == nil {
		out.Attachment = attachment
		return &out
	}

	out.Sender = &model.Sender{
		ID:          remote.Account.ID,
		DisplayName: remote.Account.SafeDisplayName(),
		AvatarPath:  attachment.Path,
	}
	out.ConversationID = remote.Account.ID
	out.Body = base.Subtitle + " \n" + decoded.Title + "\n" + decoded.Body
	return &out
}

// resolve returns nil on any failure: unknown account, network, decode or
// timeout.
func (p *Pipeline) resolve(ctx context.Context, decoded *model.DecodedNotification) *model.RemoteNotification {
	if p.accounts == nil || p.remote == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.LookupTimeout)
	defer cancel()

	acc, err := p.accounts.FindByAccessToken(ctx, decoded.AccessToken)
	if err != nil {
		log.Debug("account lookup failed", zap.Error(err))
		return nil
	}
	if acc == nil {
		return nil
	}

	remote, err := p.remote.GetNotification(ctx, acc, decoded.NotificationID)
	if err != nil {
		log.Debug("remote notification lookup failed",
			zap.String("server", acc.Server),
			zap.Int64("notification_id", decoded.NotificationID),
			zap.Error(err))
		return nil
	}
	return remote
}
