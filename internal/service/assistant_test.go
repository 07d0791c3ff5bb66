package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"codeqa/internal/conversation"
	"codeqa/internal/domain"
	"codeqa/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRetriever struct {
	topKs []int
	mu    sync.Mutex
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, topK int) (string, error) {
	f.mu.Lock()
	f.topKs = append(f.topKs, topK)
	f.mu.Unlock()
	return "File: a.java (lines full file)", nil
}

type fakeCompleter struct {
	CompleteFunc func(ctx context.Context, h domain.History) (string, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, h domain.History) (string, error) {
	return f.CompleteFunc(ctx, h)
}

func reply(text string) *fakeCompleter {
	return &fakeCompleter{CompleteFunc: func(context.Context, domain.History) (string, error) { return text, nil }}
}

func newAssistant(c domain.Completer, store domain.SessionStore, opts Options) (*Assistant, *fakeRetriever) {
	r := &fakeRetriever{}
	return NewAssistant(conversation.New(conversation.Config{SystemPrompt: "sys"}), r, c, store, opts, nil), r
}

func TestAsk_NewConversationThenFollowUp(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	a, r := newAssistant(reply("answer"), store, Options{})

	first, err := a.Ask(ctx, "u1", "  How does weather work?  ")
	require.NoError(t, err)
	assert.True(t, first.NewConversation)
	assert.Equal(t, "answer", first.Text)
	assert.Equal(t, []string{"answer"}, first.Chunks)

	second, err := a.Ask(ctx, "u1", "And rain?")
	require.NoError(t, err)
	assert.False(t, second.NewConversation)
	assert.Equal(t, []int{50, 10}, r.topKs)

	h, found, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, h, 5)
	assert.Contains(t, h[1].Content, "Question: How does weather work?")
}

func TestAsk_FailedFirstTurnKeepsOnlyTheGreeting(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	fail := true
	a, _ := newAssistant(&fakeCompleter{CompleteFunc: func(context.Context, domain.History) (string, error) {
		if fail {
			return "", errors.New("provider down")
		}
		return "answer", nil
	}}, store, Options{})

	rep, err := a.Ask(ctx, "u1", "q")

	assert.ErrorContains(t, err, "provider down")
	assert.True(t, rep.NewConversation)
	h, found, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.History{{Role: domain.RoleSystem, Content: "sys"}}, h)

	fail = false
	rep, err = a.Ask(ctx, "u1", "q")

	require.NoError(t, err)
	assert.False(t, rep.NewConversation, "a retry continues the conversation started by the failed turn")
}

func TestAsk_EmptyQuery(t *testing.T) {
	a, r := newAssistant(reply("x"), session.NewMemoryStore(), Options{})

	_, err := a.Ask(context.Background(), "u1", " \n\t")

	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Empty(t, r.topKs)
}

func TestAsk_LongAnswerIsSegmented(t *testing.T) {
	long := strings.Repeat("a line of prose\n", 40)
	a, _ := newAssistant(reply(long), session.NewMemoryStore(), Options{MessageLimit: 100})

	rep, err := a.Ask(context.Background(), "u1", "q")

	require.NoError(t, err)
	assert.Greater(t, len(rep.Chunks), 1)
	for _, c := range rep.Chunks {
		assert.LessOrEqual(t, len(c), 100)
	}
}

func TestAsk_TrimmedAfterSixTurns(t *testing.T) {
	a, _ := newAssistant(reply("a"), session.NewMemoryStore(), Options{})
	var trimmed []bool

	for i := 0; i < 6; i++ {
		rep, err := a.Ask(context.Background(), "u1", "q")
		require.NoError(t, err)
		trimmed = append(trimmed, rep.Trimmed)
	}

	assert.Equal(t, []bool{false, false, false, false, false, true}, trimmed)
}

func TestAsk_TurnTimeout(t *testing.T) {
	a, _ := newAssistant(&fakeCompleter{CompleteFunc: func(ctx context.Context, _ domain.History) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}, session.NewMemoryStore(), Options{TurnTimeout: 20 * time.Millisecond})

	_, err := a.Ask(context.Background(), "u1", "q")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAsk_SameKeyIsSerialized(t *testing.T) {
	var inFlight, peak int32
	c := &fakeCompleter{CompleteFunc: func(context.Context, domain.History) (string, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return "a", nil
	}}
	store := session.NewMemoryStore()
	a, _ := newAssistant(c, store, Options{MaxConcurrentTurns: 8})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Ask(context.Background(), "same", "q")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
	h, _, _ := store.Load(context.Background(), "same")
	assert.Len(t, h, 11, "five turns on top of the system message")
	assert.Empty(t, a.locks.locks)
}

func TestAsk_ConcurrencyCap(t *testing.T) {
	var inFlight, peak int32
	release := make(chan struct{})
	c := &fakeCompleter{CompleteFunc: func(context.Context, domain.History) (string, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&inFlight, -1)
		return "a", nil
	}}
	a, _ := newAssistant(c, session.NewMemoryStore(), Options{MaxConcurrentTurns: 2})

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = a.Ask(context.Background(), key, "q")
		}()
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&inFlight) == 2 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(2), atomic.LoadInt32(&peak))
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	a, _ := newAssistant(reply("a"), session.NewMemoryStore(), Options{})
	_, err := a.Ask(ctx, "u1", "q")
	require.NoError(t, err)

	existed, err := a.Clear(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = a.Clear(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, existed)

	rep, err := a.Ask(ctx, "u1", "q")
	require.NoError(t, err)
	assert.True(t, rep.NewConversation)
}
