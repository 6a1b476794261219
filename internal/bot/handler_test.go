package bot

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/modbot/internal/moderation"
)

type deleteCall struct {
	channelID string
	messageID string
	at        time.Time
}

type fakeDeleter struct {
	mu    sync.Mutex
	calls []deleteCall
	err   error
	done  chan struct{}
}

func newFakeDeleter() *fakeDeleter {
	return &fakeDeleter{done: make(chan struct{}, 16)}
}

func (d *fakeDeleter) DeleteMessage(_ context.Context, channelID, messageID string) error {
	d.mu.Lock()
	d.calls = append(d.calls, deleteCall{channelID: channelID, messageID: messageID, at: time.Now()})
	err := d.err
	d.mu.Unlock()
	d.done <- struct{}{}
	return err
}

func (d *fakeDeleter) Calls() []deleteCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]deleteCall(nil), d.calls...)
}

type fakeClaimer struct {
	mu       sync.Mutex
	ok       bool
	err      error
	released []string
}

func (c *fakeClaimer) Claim(context.Context, string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ok, c.err
}

func (c *fakeClaimer) Release(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = append(c.released, id)
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []moderation.ModerationEvent
}

func (p *fakeEvents) PublishModerationEvent(data []byte) error {
	var ev moderation.ModerationEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *fakeEvents) Events() []moderation.ModerationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]moderation.ModerationEvent(nil), p.events...)
}

func newTestHandler(t *testing.T, d Deleter, cfg Config, opts ...Option) *Handler {
	t.Helper()
	m, err := moderation.DefaultMatcher()
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	opts = append([]Option{WithLogger(logger)}, opts...)
	h := NewHandler(moderation.NewFilter(m), d, cfg, opts...)
	t.Cleanup(h.Stop)
	return h
}

func waitDelete(t *testing.T, d *fakeDeleter) {
	t.Helper()
	select {
	case <-d.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delete")
	}
}

func testConfig(delay time.Duration) Config {
	cfg := DefaultConfig()
	cfg.DeleteDelay = delay
	return cfg
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{
		"":        PolicyInspect,
		"inspect": PolicyInspect,
		"ignore":  PolicyIgnore,
		"delete":  PolicyDelete,
	} {
		got, err := ParsePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParsePolicy("ban")
	assert.Error(t, err)
}

func TestHandleMessageDeletesAfterDelay(t *testing.T) {
	d := newFakeDeleter()
	h := newTestHandler(t, d, testConfig(50*time.Millisecond))

	start := time.Now()
	flagged := h.HandleMessage(Message{ID: "m1", ChannelID: "c1", AuthorID: "u1", Content: "claim your AIRDROP"})
	require.True(t, flagged)
	assert.Empty(t, d.Calls(), "delete must not happen synchronously")

	waitDelete(t, d)
	calls := d.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "c1", calls[0].channelID)
	assert.Equal(t, "m1", calls[0].messageID)
	assert.GreaterOrEqual(t, calls[0].at.Sub(start), 50*time.Millisecond)
}

func TestHandleMessageClean(t *testing.T) {
	d := newFakeDeleter()
	h := newTestHandler(t, d, testConfig(0))

	assert.False(t, h.HandleMessage(Message{ID: "m1", ChannelID: "c1", Content: "good morning everyone"}))
	h.Stop()
	assert.Empty(t, d.Calls())
}

func TestStopFlushesPendingDeletes(t *testing.T) {
	d := newFakeDeleter()
	h := newTestHandler(t, d, testConfig(time.Hour))

	require.True(t, h.HandleMessage(Message{ID: "m1", ChannelID: "c1", Content: "ico presale"}))
	require.True(t, h.HandleMessage(Message{ID: "m2", ChannelID: "c1", Content: "giveaway"}))

	done := make(chan struct{})
	go func() {
		h.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not flush pending deletes")
	}
	assert.Len(t, d.Calls(), 2)

	// After Stop, flagged messages are deleted inline.
	require.True(t, h.HandleMessage(Message{ID: "m3", ChannelID: "c1", Content: "airdrop"}))
	assert.Len(t, d.Calls(), 3)
}

func TestClaimLostSkipsDelete(t *testing.T) {
	d := newFakeDeleter()
	events := &fakeEvents{}
	h := newTestHandler(t, d, testConfig(0), WithClaimer(&fakeClaimer{ok: false}), WithEventPublisher(events))

	require.True(t, h.HandleMessage(Message{ID: "m1", ChannelID: "c1", Content: "airdrop"}))
	h.Stop()

	assert.Empty(t, d.Calls())
	assert.Empty(t, events.Events())
}

func TestClaimErrorFailsOpen(t *testing.T) {
	d := newFakeDeleter()
	h := newTestHandler(t, d, testConfig(0), WithClaimer(&fakeClaimer{err: errors.New("redis: connection refused")}))

	require.True(t, h.HandleMessage(Message{ID: "m1", ChannelID: "c1", Content: "airdrop"}))
	waitDelete(t, d)
	assert.Len(t, d.Calls(), 1)
}

func TestDeleteErrorReleasesClaimAndPublishes(t *testing.T) {
	d := newFakeDeleter()
	d.err = errors.New("HTTP 403 Forbidden")
	claimer := &fakeClaimer{ok: true}
	events := &fakeEvents{}

	m, err := moderation.DefaultMatcher()
	require.NoError(t, err)
	logger, hook := test.NewNullLogger()
	h := NewHandler(moderation.NewFilter(m), d, testConfig(0),
		WithLogger(logger), WithClaimer(claimer), WithEventPublisher(events))

	require.True(t, h.HandleMessage(Message{ID: "m1", ChannelID: "c1", GuildID: "g1", AuthorID: "u1", Content: "4irdr0p"}))
	h.Stop()

	claimer.mu.Lock()
	assert.Equal(t, []string{"m1"}, claimer.released)
	claimer.mu.Unlock()

	evs := events.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, moderation.ActionDeleteFailed, evs[0].Action)
	assert.Equal(t, "HTTP 403 Forbidden", evs[0].Error)
	assert.Equal(t, "airdrop", evs[0].Term)

	var sawError bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			sawError = true
		}
	}
	assert.True(t, sawError, "delete failure must be logged at error level")
}

func TestEventPublished(t *testing.T) {
	d := newFakeDeleter()
	events := &fakeEvents{}
	h := newTestHandler(t, d, testConfig(0), WithEventPublisher(events))

	require.True(t, h.HandleMessage(Message{ID: "m1", ChannelID: "c1", GuildID: "g1", AuthorID: "u1", Content: "__giveaway__"}))
	h.Stop()

	evs := events.Events()
	require.Len(t, evs, 1)
	ev := evs[0]
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "discord", ev.Source)
	assert.Equal(t, "g1", ev.GuildID)
	assert.Equal(t, "c1", ev.ChannelID)
	assert.Equal(t, "m1", ev.MessageID)
	assert.Equal(t, "u1", ev.AuthorID)
	assert.Equal(t, moderation.ReasonForbiddenTerm, ev.Reason)
	assert.Equal(t, "giveaway", ev.Term)
	assert.Equal(t, moderation.ActionDeleted, ev.Action)
	assert.Empty(t, ev.Error)
	assert.NotZero(t, ev.Ts)
}

func TestBotMessagePolicies(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		content string
		want    bool
	}{
		{"inspect flagged", PolicyInspect, "airdrop", true},
		{"inspect clean", PolicyInspect, "hello", false},
		{"ignore flagged", PolicyIgnore, "airdrop", false},
		{"delete clean", PolicyDelete, "hello", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDeleter()
			cfg := testConfig(0)
			cfg.Policy = tt.policy
			h := newTestHandler(t, d, cfg)

			got := h.HandleMessage(Message{ID: "m1", ChannelID: "c1", AuthorIsBot: true, Content: tt.content})
			assert.Equal(t, tt.want, got)
			h.Stop()
			if tt.want {
				assert.Len(t, d.Calls(), 1)
			} else {
				assert.Empty(t, d.Calls())
			}
		})
	}
}

func TestOwnMessagesNeverModerated(t *testing.T) {
	d := newFakeDeleter()
	cfg := testConfig(0)
	cfg.Policy = PolicyDelete
	h := newTestHandler(t, d, cfg)
	h.SetSelfID("self")

	assert.False(t, h.HandleMessage(Message{ID: "m1", ChannelID: "c1", AuthorID: "self", AuthorIsBot: true, Content: "airdrop"}))
	h.Stop()
	assert.Empty(t, d.Calls())
}

func TestHandleMessageDoesNotBlockOnSlowDelete(t *testing.T) {
	block := make(chan struct{})
	d := &blockingDeleter{release: block}
	h := newTestHandler(t, d, testConfig(0))
	t.Cleanup(func() { close(block) })

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.HandleMessage(Message{ID: "m", ChannelID: "c", Content: "airdrop"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("HandleMessage blocked on a pending delete")
	}
}

type blockingDeleter struct {
	release chan struct{}
}

func (d *blockingDeleter) DeleteMessage(ctx context.Context, _, _ string) error {
	select {
	case <-d.release:
	case <-ctx.Done():
	}
	return nil
}
