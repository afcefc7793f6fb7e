// Package chatclient keeps a participant's view of a conversation in sync
// with the server by periodic reconciliation.
package chatclient

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fiscaldesk/support-platform/internal/model"
	"github.com/fiscaldesk/support-platform/pkg/logger"
	"github.com/fiscaldesk/support-platform/pkg/metrics"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultPollTimeout  = 10 * time.Second
)

// Fetcher reads authoritative conversation state.
type Fetcher interface {
	FetchConversation(ctx context.Context, conversationID string) (*model.Conversation, error)
	FetchMessages(ctx context.Context, conversationID string, since uint64) ([]model.Message, error)
}

// Callbacks receive what a poll observed. Nil callbacks are skipped.
// They run on the poller goroutine and must not call Stop.
type Callbacks struct {
	OnMessages         func(messages []model.Message)
	OnStatus           func(status model.ConversationStatus)
	OnSpecialistOnline func()
	OnEnded            func()
	OnError            func(err error)
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Interval time.Duration
	Timeout  time.Duration

	// Watermark is the last sequence the caller already holds.
	Watermark uint64

	// SpecialistOnlineSeen suppresses the specialist-online signal when the
	// caller already surfaced it, e.g. before reopening a chat window.
	SpecialistOnlineSeen bool
}

// Poller reconciles one conversation on a fixed interval until it ends or
// is stopped.
type Poller struct {
	fetcher        Fetcher
	conversationID string
	cfg            PollerConfig
	callbacks      Callbacks
	logger         *logger.Logger

	mu               sync.Mutex
	watermark        uint64
	status           model.ConversationStatus
	specialistOnline bool
	ended            bool
	cancel           context.CancelFunc
	done             chan struct{}
}

// NewPoller creates a poller. It does nothing until Start.
func NewPoller(fetcher Fetcher, conversationID string, cfg PollerConfig, callbacks Callbacks, log *logger.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPollTimeout
	}
	return &Poller{
		fetcher:          fetcher,
		conversationID:   conversationID,
		cfg:              cfg,
		callbacks:        callbacks,
		logger:           log.Component("poller").With(zap.String("conversation_id", conversationID)),
		watermark:        cfg.Watermark,
		specialistOnline: cfg.SpecialistOnlineSeen,
	}
}

// Start launches the poll loop. It polls once immediately and then on every
// interval. Starting a running or ended poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil || p.ended {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, cancel, p.done)
}

// Stop cancels the loop and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when the running loop exits. It returns nil before Start.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Watermark returns the highest contiguous sequence applied so far.
func (p *Poller) Watermark() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watermark
}

// Status returns the last observed status.
func (p *Poller) Status() model.ConversationStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer func() {
		cancel()
		p.mu.Lock()
		p.cancel = nil
		p.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if ended := p.Poll(ctx); ended {
			p.logger.Debug("conversation ended, polling stopped")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll runs one reconciliation: status first, then messages above the
// watermark, page after page until the watermark reaches the last sequence
// the status reported. It reports whether the conversation has ended and
// every message was delivered. Failures are reported through OnError and
// leave the watermark untouched.
func (p *Poller) Poll(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	conv, err := p.fetchConversation(ctx)
	if err != nil {
		p.fail(ctx, fmt.Errorf("failed to fetch status: %w", err))
		return false
	}

	for {
		messages, err := p.fetchMessages(ctx)
		if err != nil {
			p.fail(ctx, fmt.Errorf("failed to fetch messages: %w", err))
			return false
		}

		applied := p.apply(messages)
		if len(applied) > 0 && p.callbacks.OnMessages != nil {
			p.callbacks.OnMessages(applied)
		}
		if len(applied) == 0 || p.Watermark() >= conv.LastSequence {
			break
		}
	}
	caughtUp := p.Watermark() >= conv.LastSequence

	statusChanged, online, ended := p.observe(conv.Status, caughtUp)
	if statusChanged && p.callbacks.OnStatus != nil {
		p.callbacks.OnStatus(conv.Status)
	}
	if online && p.callbacks.OnSpecialistOnline != nil {
		p.callbacks.OnSpecialistOnline()
	}
	if ended && p.callbacks.OnEnded != nil {
		p.callbacks.OnEnded()
	}

	return conv.Status == model.StatusEnded && caughtUp
}

func (p *Poller) fetchConversation(ctx context.Context) (*model.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	return p.fetcher.FetchConversation(ctx, p.conversationID)
}

func (p *Poller) fetchMessages(ctx context.Context) ([]model.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	return p.fetcher.FetchMessages(ctx, p.conversationID, p.Watermark())
}

// apply advances the watermark over the contiguous run of sequences right
// above it and returns those messages. Anything after a gap waits for the
// next poll.
func (p *Poller) apply(messages []model.Message) []model.Message {
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Sequence < messages[j].Sequence
	})

	p.mu.Lock()
	defer p.mu.Unlock()

	var applied []model.Message
	for _, m := range messages {
		if m.Sequence <= p.watermark {
			continue
		}
		if m.Sequence != p.watermark+1 {
			p.logger.Debug("sequence gap, deferring",
				zap.Uint64("watermark", p.watermark),
				zap.Uint64("sequence", m.Sequence),
			)
			break
		}
		applied = append(applied, m)
		p.watermark = m.Sequence
	}
	return applied
}

// observe records status and reports which one-shot signals fire now.
// Ended waits until the log is fully delivered.
func (p *Poller) observe(status model.ConversationStatus, caughtUp bool) (changed, online, ended bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	changed = status != p.status
	p.status = status

	if status == model.StatusActiveHuman && !p.specialistOnline {
		p.specialistOnline = true
		online = true
	}
	if status == model.StatusEnded && caughtUp && !p.ended {
		p.ended = true
		ended = true
	}
	return changed, online, ended
}

func (p *Poller) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	metrics.PollErrors.Inc()
	p.logger.Warn("poll failed", zap.Error(err))
	if p.callbacks.OnError != nil {
		p.callbacks.OnError(err)
	}
}
