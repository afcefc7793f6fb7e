package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscaldesk/support-platform/internal/model"
	"github.com/fiscaldesk/support-platform/internal/store"
	"github.com/fiscaldesk/support-platform/pkg/logger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.ConversationEvent
}

func (p *recordingPublisher) PublishConversationEvent(_ context.Context, e *model.ConversationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *e)
	return nil
}

func (p *recordingPublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store     *store.MemoryStore
	svc       *ConversationService
	publisher *recordingPublisher
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	pub := &recordingPublisher{}
	opts = append([]Option{WithPublisher(pub)}, opts...)
	return &fixture{
		store:     st,
		svc:       NewConversationService(st, logger.NewNop(), opts...),
		publisher: pub,
	}
}

func (f *fixture) create(t *testing.T) *model.Conversation {
	t.Helper()
	conv, err := f.svc.Create(context.Background(), "participant-1")
	require.NoError(t, err)
	return conv
}

func participantSays(content string) *model.AppendMessageRequest {
	return &model.AppendMessageRequest{
		SenderType: model.SenderParticipant,
		SenderID:   "participant-1",
		SenderName: "Ana",
		Content:    content,
	}
}

func specialistSays(content string) *model.AppendMessageRequest {
	return &model.AppendMessageRequest{
		SenderType: model.SenderSpecialist,
		SenderID:   "student-7",
		SenderName: "Bruno",
		Content:    content,
	}
}

func TestCreateStartsWithAssistant(t *testing.T) {
	f := newFixture(t)

	conv := f.create(t)

	assert.Equal(t, model.StatusAI, conv.Status)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, []model.EventType{model.EventCreated}, f.publisher.types())

	_, err := f.svc.Create(context.Background(), "  ")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestEscalationPhraseRequestsHandoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.create(t)

	_, err := f.svc.AppendMessage(ctx, conv.ID, participantSays("I want to talk to a specialist"))
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaitingHuman, got.Status)

	open, err := f.store.OpenHandoff(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, open.Open())

	msgs, err := f.svc.Messages(ctx, conv.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.SenderSystem, msgs[1].SenderType)
	assert.Contains(t, f.publisher.types(), model.EventHandoffRequested)
}

func TestOrdinaryMessageKeepsAssistant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.create(t)

	_, err := f.svc.AppendMessage(ctx, conv.ID, participantSays("How do I declare my MEI income?"))
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAI, got.Status)
	assert.Equal(t, uint64(1), got.LastSequence)
}

func TestSpecialistJoinActivatesHuman(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.create(t)

	_, err := f.svc.RequestHuman(ctx, conv.ID, "participant-1")
	require.NoError(t, err)

	_, err = f.svc.AppendMessage(ctx, conv.ID, specialistSays("Hi Ana, I am here to help."))
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActiveHuman, got.Status)
	assert.Equal(t, "student-7", got.AssignedSpecialistID)

	_, err = f.store.OpenHandoff(ctx, conv.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	handoffs, err := f.store.ListHandoffs(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, handoffs, 1)
	assert.Equal(t, model.HandoffAccepted, handoffs[0].Resolution)
}

func TestSpecialistMessageDuringAssistantKeepsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.create(t)

	_, err := f.svc.AppendMessage(ctx, conv.ID, specialistSays("monitoring"))
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAI, got.Status)
}

func TestRequestHumanIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.create(t)

	for i := 0; i < 3; i++ {
		got, err := f.svc.RequestHuman(ctx, conv.ID, "participant-1")
		require.NoError(t, err)
		assert.Equal(t, model.StatusWaitingHuman, got.Status)
	}

	handoffs, err := f.store.ListHandoffs(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, handoffs, 1)
}

func TestRequestHumanRejectsOtherParticipant(t *testing.T) {
	f := newFixture(t)
	conv := f.create(t)

	_, err := f.svc.RequestHuman(context.Background(), conv.ID, "participant-2")
	assert.ErrorIs(t, err, model.ErrPreconditionFailed)
}

func TestCloseEndsConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.create(t)

	_, err := f.svc.RequestHuman(ctx, conv.ID, "")
	require.NoError(t, err)
	_, err = f.svc.AppendMessage(ctx, conv.ID, specialistSays("Done, your CPF is regular."))
	require.NoError(t, err)

	closed, err := f.svc.Close(ctx, conv.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusEnded, closed.Status)
	assert.NotNil(t, closed.EndedAt)

	_, err = f.svc.AppendMessage(ctx, conv.ID, participantSays("one more thing"))
	assert.ErrorIs(t, err, model.ErrPreconditionFailed)

	fb, err := f.svc.SubmitFeedback(ctx, &model.FeedbackRequest{ConversationID: conv.ID, Rating: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, fb.Rating)
	assert.Equal(t, "student-7", fb.SpecialistID)

	_, err = f.svc.Close(ctx, conv.ID, "")
	assert.ErrorIs(t, err, model.ErrPreconditionFailed)
}

func TestCloseFromWaitingResolvesHandoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.create(t)

	_, err := f.svc.RequestHuman(ctx, conv.ID, "")
	require.NoError(t, err)
	_, err = f.svc.Close(ctx, conv.ID, "Closing, please book an appointment.")
	require.NoError(t, err)

	handoffs, err := f.store.ListHandoffs(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, handoffs, 1)
	assert.Equal(t, model.HandoffClosed, handoffs[0].Resolution)
}

func TestFeedbackRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.create(t)

	_, err := f.svc.SubmitFeedback(ctx, &model.FeedbackRequest{ConversationID: conv.ID, Rating: 4})
	assert.ErrorIs(t, err, model.ErrPreconditionFailed, "open conversation")

	_, err = f.svc.Close(ctx, conv.ID, "")
	require.NoError(t, err)

	for _, rating := range []int{0, 6, -1} {
		_, err := f.svc.SubmitFeedback(ctx, &model.FeedbackRequest{ConversationID: conv.ID, Rating: rating})
		assert.ErrorIs(t, err, model.ErrValidation, "rating %d", rating)
	}

	_, err = f.svc.SubmitFeedback(ctx, &model.FeedbackRequest{ConversationID: conv.ID, Rating: 1, Comment: "slow"})
	require.NoError(t, err)

	_, err = f.svc.SubmitFeedback(ctx, &model.FeedbackRequest{ConversationID: conv.ID, Rating: 5})
	assert.ErrorIs(t, err, model.ErrPreconditionFailed, "second submission")
}

func TestAppendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.create(t)

	tests := []struct {
		name string
		req  *model.AppendMessageRequest
	}{
		{"nil request", nil},
		{"blank content", participantSays("   ")},
		{"unknown sender", &model.AppendMessageRequest{SenderType: "robot", Content: "hi"}},
		{"invalid utf8", participantSays(string([]byte{0xff, 0xfe}))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AppendMessage(ctx, conv.ID, tt.req)
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}

	seq, err := f.store.LastSequence(ctx, conv.ID)
	require.NoError(t, err)
	assert.Zero(t, seq)

	_, err = f.svc.AppendMessage(ctx, "missing", participantSays("hello"))
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestConcurrentAppendsAreGapless(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.create(t)

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := f.svc.AppendMessage(ctx, conv.ID, participantSays("question about my tax return"))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	msgs, err := f.svc.Messages(ctx, conv.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, writers*perWriter)
	for i, m := range msgs {
		assert.Equal(t, uint64(i+1), m.Sequence)
	}
	assert.Zero(t, f.svc.locks.size())
}

func TestAppendIfStatusSkipsAfterHandoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.create(t)

	_, err := f.svc.RequestHuman(ctx, conv.ID, "")
	require.NoError(t, err)

	msg, appended, err := f.svc.AppendIfStatus(ctx, conv.ID, &model.AppendMessageRequest{
		SenderType: model.SenderAssistant,
		SenderName: "bot",
		Content:    "late reply",
	}, model.StatusAI)
	require.NoError(t, err)
	assert.False(t, appended)
	assert.Nil(t, msg)
}

func TestListByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t)
	f.create(t)

	_, err := f.svc.RequestHuman(ctx, a.ID, "")
	require.NoError(t, err)

	waiting, err := f.svc.ListByStatus(ctx, model.StatusWaitingHuman)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, a.ID, waiting[0].ID)

	_, err = f.svc.ListByStatus(ctx, "paused")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestCustomDetector(t *testing.T) {
	f := newFixture(t, WithDetector(NewPhraseDetector([]string{"socorro"})))
	ctx := context.Background()
	conv := f.create(t)

	_, err := f.svc.AppendMessage(ctx, conv.ID, participantSays("talk to a human"))
	require.NoError(t, err)
	got, _ := f.svc.Get(ctx, conv.ID)
	assert.Equal(t, model.StatusAI, got.Status)

	_, err = f.svc.AppendMessage(ctx, conv.ID, participantSays("SOCORRO por favor"))
	require.NoError(t, err)
	got, _ = f.svc.Get(ctx, conv.ID)
	assert.Equal(t, model.StatusWaitingHuman, got.Status)
}

func TestExpireHandoff(t *testing.T) {
	now := time.Date(2025, 1, 15, 14, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	f := newFixture(t, WithClock(clock))
	ctx := context.Background()
	conv := f.create(t)

	ok, err := f.svc.ExpireHandoff(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, ok, "not waiting")

	_, err = f.svc.RequestHuman(ctx, conv.ID, "")
	require.NoError(t, err)

	ok, err = f.svc.ExpireHandoff(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := f.svc.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusEnded, got.Status)

	handoffs, err := f.store.ListHandoffs(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HandoffExpired, handoffs[0].Resolution)
}

// flakyHandoffs fails CreateHandoff inside transactions while fail is set.
type flakyHandoffs struct {
	*store.MemoryStore
	fail error
}

func (f *flakyHandoffs) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return f.MemoryStore.WithinTx(ctx, func(tx store.Tx) error {
		return fn(&flakyHandoffTx{Tx: tx, fail: f.fail})
	})
}

type flakyHandoffTx struct {
	store.Tx
	fail error
}

func (t *flakyHandoffTx) CreateHandoff(ctx context.Context, req *model.HandoffRequest) error {
	if t.fail != nil {
		return t.fail
	}
	return t.Tx.CreateHandoff(ctx, req)
}

func TestFailedEscalationLeavesNoMessage(t *testing.T) {
	ctx := context.Background()
	repo := &flakyHandoffs{MemoryStore: store.NewMemoryStore(), fail: errors.New("disk full")}
	pub := &recordingPublisher{}
	svc := NewConversationService(repo, logger.NewNop(), WithPublisher(pub))

	conv, err := svc.Create(ctx, "participant-1")
	require.NoError(t, err)

	_, err = svc.AppendMessage(ctx, conv.ID, participantSays("I want to talk to a specialist"))
	require.Error(t, err)

	last, err := repo.LastSequence(ctx, conv.ID)
	require.NoError(t, err)
	assert.Zero(t, last, "message must not survive a failed handoff")

	got, err := svc.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAI, got.Status)
	assert.Zero(t, got.LastSequence)
	assert.Equal(t, []model.EventType{model.EventCreated}, pub.types())

	_, err = svc.RequestHuman(ctx, conv.ID, "")
	require.Error(t, err)
	last, _ = repo.LastSequence(ctx, conv.ID)
	assert.Zero(t, last)

	repo.fail = nil
	msg, err := svc.AppendMessage(ctx, conv.ID, participantSays("I want to talk to a specialist"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), msg.Sequence)

	got, err = svc.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaitingHuman, got.Status)
	assert.Equal(t, uint64(2), got.LastSequence)
}
