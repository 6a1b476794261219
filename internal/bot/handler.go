// Package bot turns filter verdicts into moderation actions. The Handler is
// the message-received callback of the gateway: it decides synchronously
// whether a message must go, then deletes it after a short delay on its own
// goroutine so the event loop is never blocked or crashed by a failed delete.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/whisper/modbot/internal/metrics"
	"github.com/whisper/modbot/internal/moderation"
)

// ReasonBotAuthor is the verdict reason used when PolicyDelete removes a
// bot-authored message regardless of content.
const ReasonBotAuthor = "bot_author"

// Policy decides how messages written by other bots are treated.
type Policy string

const (
	// PolicyInspect filters bot messages like any other message.
	PolicyInspect Policy = "inspect"
	// PolicyIgnore never moderates bot messages.
	PolicyIgnore Policy = "ignore"
	// PolicyDelete removes every bot message.
	PolicyDelete Policy = "delete"
)

// ParsePolicy validates a policy name. The empty string selects PolicyInspect.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case "":
		return PolicyInspect, nil
	case PolicyInspect, PolicyIgnore, PolicyDelete:
		return p, nil
	default:
		return "", fmt.Errorf("bot: unknown bot message policy %q", s)
	}
}

// Message is an inbound chat message, independent of the gateway library.
type Message struct {
	ID          string
	ChannelID   string
	GuildID     string
	AuthorID    string
	AuthorIsBot bool
	Content     string
}

// Deleter removes a message from the platform.
type Deleter interface {
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// Claimer arbitrates between replicas so only one deletes a message.
type Claimer interface {
	Claim(ctx context.Context, messageID string) (bool, error)
	Release(ctx context.Context, messageID string) error
}

// EventPublisher receives an encoded moderation.ModerationEvent per action.
type EventPublisher interface {
	PublishModerationEvent(data []byte) error
}

// Config holds Handler settings.
type Config struct {
	Source        string        // metrics/event source label, e.g. "discord"
	Policy        Policy        // bot-authored message policy
	DeleteDelay   time.Duration // wait before deleting a flagged message
	DeleteTimeout time.Duration // per-attempt deadline for the delete call
}

// DefaultConfig returns the default settings: bot messages are inspected and
// flagged messages are deleted after three seconds.
func DefaultConfig() Config {
	return Config{
		Source:        "discord",
		Policy:        PolicyInspect,
		DeleteDelay:   3 * time.Second,
		DeleteTimeout: 10 * time.Second,
	}
}

// Option configures optional Handler collaborators.
type Option func(*Handler)

// WithClaimer enables cross-replica de-duplication of deletes.
func WithClaimer(c Claimer) Option {
	return func(h *Handler) { h.claimer = c }
}

// WithEventPublisher publishes an audit event after every action.
func WithEventPublisher(p EventPublisher) Option {
	return func(h *Handler) { h.events = p }
}

// WithLogger sets the logger; the standard logrus logger is used otherwise.
func WithLogger(l logrus.FieldLogger) Option {
	return func(h *Handler) { h.log = l }
}

// Handler screens messages and schedules deletion of flagged ones.
type Handler struct {
	filter  *moderation.Filter
	deleter Deleter
	claimer Claimer
	events  EventPublisher
	cfg     Config
	log     logrus.FieldLogger

	selfID atomic.Value // string

	mu      sync.Mutex
	stopped bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewHandler returns a Handler using filter for decisions and deleter for
// removals.
func NewHandler(filter *moderation.Filter, deleter Deleter, cfg Config, opts ...Option) *Handler {
	if cfg.Policy == "" {
		cfg.Policy = PolicyInspect
	}
	if cfg.DeleteTimeout <= 0 {
		cfg.DeleteTimeout = DefaultConfig().DeleteTimeout
	}
	if cfg.Source == "" {
		cfg.Source = DefaultConfig().Source
	}

	h := &Handler{
		filter:  filter,
		deleter: deleter,
		cfg:     cfg,
		log:     logrus.StandardLogger(),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.WithField("component", "bot")
	h.selfID.Store("")
	return h
}

// SetSelfID records the bot's own user ID; its messages are never moderated.
func (h *Handler) SetSelfID(id string) {
	h.selfID.Store(id)
}

// HandleMessage decides whether msg must be moderated and, if so, schedules
// its deletion. It returns the decision and never blocks on the delete.
func (h *Handler) HandleMessage(msg Message) bool {
	if self := h.selfID.Load().(string); self != "" && msg.AuthorID == self {
		return false
	}

	var verdict moderation.Verdict
	if msg.AuthorIsBot {
		switch h.cfg.Policy {
		case PolicyIgnore:
			metrics.MessagesChecked.WithLabelValues(h.cfg.Source, "skipped").Inc()
			return false
		case PolicyDelete:
			verdict = moderation.Verdict{Blocked: true, Reason: ReasonBotAuthor}
		}
	}

	if !verdict.Blocked {
		start := time.Now()
		verdict = h.filter.Check(msg.Content)
		metrics.CheckDuration.Observe(time.Since(start).Seconds())
	}
	metrics.MessagesChecked.WithLabelValues(h.cfg.Source, metrics.ResultLabel(verdict.Blocked)).Inc()

	if !verdict.Blocked {
		return false
	}

	h.log.WithFields(logrus.Fields{
		"guild_id":   msg.GuildID,
		"channel_id": msg.ChannelID,
		"message_id": msg.ID,
		"author_id":  msg.AuthorID,
		"reason":     verdict.Reason,
		"term":       verdict.Term,
	}).Info("flagged message, scheduling delete")

	h.schedule(msg, verdict)
	return true
}

// Stop cuts every pending delay short, runs the outstanding deletes and
// waits for them. Messages flagged after Stop are deleted without delay.
func (h *Handler) Stop() {
	h.mu.Lock()
	if !h.stopped {
		h.stopped = true
		close(h.stop)
	}
	h.mu.Unlock()

	h.wg.Wait()
}

func (h *Handler) schedule(msg Message, verdict moderation.Verdict) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		h.delete(msg, verdict)
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()

	metrics.PendingDeletions.Inc()
	go func() {
		defer h.wg.Done()
		defer metrics.PendingDeletions.Dec()

		if h.cfg.DeleteDelay > 0 {
			timer := time.NewTimer(h.cfg.DeleteDelay)
			select {
			case <-timer.C:
			case <-h.stop:
				timer.Stop()
			}
		}
		h.delete(msg, verdict)
	}()
}

func (h *Handler) delete(msg Message, verdict moderation.Verdict) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.DeleteTimeout)
	defer cancel()

	entry := h.log.WithFields(logrus.Fields{
		"channel_id": msg.ChannelID,
		"message_id": msg.ID,
	})

	if h.claimer != nil {
		ok, err := h.claimer.Claim(ctx, msg.ID)
		switch {
		case err != nil:
			// Deleting twice is harmless; skipping a delete is not.
			entry.WithError(err).Warn("claim failed, deleting anyway")
		case !ok:
			entry.Debug("message claimed by another replica")
			metrics.DeletionsTotal.WithLabelValues(metrics.OutcomeClaimedElsewhere).Inc()
			return
		}
	}

	action := moderation.ActionDeleted
	err := h.deleter.DeleteMessage(ctx, msg.ChannelID, msg.ID)
	if err != nil {
		action = moderation.ActionDeleteFailed
		metrics.DeletionsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		entry.WithError(err).Error("error deleting message")
		if h.claimer != nil {
			if rerr := h.claimer.Release(ctx, msg.ID); rerr != nil {
				entry.WithError(rerr).Warn("failed to release claim")
			}
		}
	} else {
		metrics.DeletionsTotal.WithLabelValues(metrics.OutcomeDeleted).Inc()
		entry.Info("deleted message")
	}

	h.publish(msg, verdict, action, err)
}

func (h *Handler) publish(msg Message, verdict moderation.Verdict, action string, cause error) {
	if h.events == nil {
		return
	}

	ev := moderation.ModerationEvent{
		ID:        uuid.NewString(),
		Source:    h.cfg.Source,
		GuildID:   msg.GuildID,
		ChannelID: msg.ChannelID,
		MessageID: msg.ID,
		AuthorID:  msg.AuthorID,
		Reason:    verdict.Reason,
		Term:      verdict.Term,
		Action:    action,
		Ts:        time.Now().Unix(),
	}
	if cause != nil {
		ev.Error = cause.Error()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).Error("failed to marshal moderation event")
		return
	}
	if err := h.events.PublishModerationEvent(data); err != nil {
		h.log.WithError(err).Warn("failed to publish moderation event")
	}
}
