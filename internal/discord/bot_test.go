package discord

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeqa/internal/llm"
	"codeqa/internal/metrics"
	"codeqa/internal/service"
)

type sent struct {
	op, channel, id, content string
}

type fakeMessenger struct {
	log  []sent
	next int
}

func (f *fakeMessenger) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.next++
	id := fmt.Sprintf("m%d", f.next)
	f.log = append(f.log, sent{"send", channelID, id, content})
	return &discordgo.Message{ID: id, ChannelID: channelID, Content: content}, nil
}

func (f *fakeMessenger) ChannelMessageEdit(channelID, messageID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.log = append(f.log, sent{"edit", channelID, messageID, content})
	return &discordgo.Message{ID: messageID, ChannelID: channelID, Content: content}, nil
}

type fakeAssistant struct {
	AskFunc  func(ctx context.Context, key, query string) (service.Reply, error)
	existed  bool
	clearKey string
}

func (f *fakeAssistant) Ask(ctx context.Context, key, query string) (service.Reply, error) {
	return f.AskFunc(ctx, key, query)
}

func (f *fakeAssistant) Clear(_ context.Context, key string) (bool, error) {
	f.clearKey = key
	return f.existed, nil
}

type recorder struct {
	startups     []string
	conversation []string
	invocations  []metrics.Invocation
}

func (r *recorder) Startup(u string)                       { r.startups = append(r.startups, u) }
func (r *recorder) NewConversation(u string)               { r.conversation = append(r.conversation, u) }
func (r *recorder) CommandInvocation(i metrics.Invocation) { r.invocations = append(r.invocations, i) }

func message(content string) *discordgo.Message {
	return &discordgo.Message{ChannelID: "c1", Content: content, Author: &discordgo.User{ID: "u42"}}
}

func TestAsk_EditsPlaceholderThenFollowsUp(t *testing.T) {
	var gotKey, gotQuery string
	a := &fakeAssistant{AskFunc: func(_ context.Context, key, q string) (service.Reply, error) {
		gotKey, gotQuery = key, q
		return service.Reply{Text: "x", Chunks: []string{"part one", "  \n", "part two"}, Trimmed: true, NewConversation: true}, nil
	}}
	rec := &recorder{}
	out := &fakeMessenger{}

	NewBot(a, rec, "!", nil).HandleMessage(context.Background(), out, message("!hy How does weather work?"))

	assert.Equal(t, "u42", gotKey)
	assert.Equal(t, "How does weather work?", gotQuery)
	assert.Equal(t, []sent{
		{"send", "c1", "m1", processing},
		{"edit", "c1", "m1", "part one"},
		{"send", "c1", "m2", "part two"},
		{"send", "c1", "m3", trimmedNotice},
	}, out.log)
	assert.Equal(t, []string{"u42"}, rec.conversation)
	require.Len(t, rec.invocations, 1)
	inv := rec.invocations[0]
	assert.True(t, inv.Success)
	assert.Equal(t, "hy", inv.Command)
	assert.Equal(t, 22, inv.QueryChars)
	assert.Equal(t, 2, inv.ResponseChunks)
	assert.True(t, inv.HistoryTrimmed)
	assert.True(t, inv.NewConversation)
}

func TestAsk_AliasAndEmptyQuery(t *testing.T) {
	called := false
	a := &fakeAssistant{AskFunc: func(context.Context, string, string) (service.Reply, error) {
		called = true
		return service.Reply{}, nil
	}}
	rec := &recorder{}
	out := &fakeMessenger{}

	NewBot(a, rec, "!", nil).HandleMessage(context.Background(), out, message("!askhy   "))

	assert.False(t, called)
	assert.Equal(t, []sent{{"send", "c1", "m1", usageHint}}, out.log)
	require.Len(t, rec.invocations, 1)
	assert.False(t, rec.invocations[0].Success)
	assert.Equal(t, "empty_query", rec.invocations[0].Reason)
}

func TestAsk_FailureEditsPlaceholder(t *testing.T) {
	a := &fakeAssistant{AskFunc: func(context.Context, string, string) (service.Reply, error) {
		return service.Reply{}, fmt.Errorf("turn: %w", &llm.ProviderError{Provider: "openai", Kind: llm.KindRateLimit, Err: errors.New("429")})
	}}
	rec := &recorder{}
	out := &fakeMessenger{}

	NewBot(a, rec, "!", nil).HandleMessage(context.Background(), out, message("!hy q"))

	assert.Equal(t, sent{"edit", "c1", "m1", failedNotice}, out.log[len(out.log)-1])
	require.Len(t, rec.invocations, 1)
	assert.False(t, rec.invocations[0].Success)
	assert.Equal(t, "rate_limit", rec.invocations[0].Reason)
}

func TestClear(t *testing.T) {
	a := &fakeAssistant{existed: true}
	rec := &recorder{}
	out := &fakeMessenger{}

	NewBot(a, rec, "!", nil).HandleMessage(context.Background(), out, message("!clear"))

	assert.Equal(t, "u42", a.clearKey)
	assert.Equal(t, []sent{{"send", "c1", "m1", clearedNotice}}, out.log)
	require.Len(t, rec.invocations, 1)
	assert.True(t, rec.invocations[0].HistoryExisted)
	assert.Equal(t, "clear", rec.invocations[0].Command)
}

func TestIgnoresOtherMessages(t *testing.T) {
	out := &fakeMessenger{}
	b := NewBot(&fakeAssistant{}, nil, "!", nil)

	for _, c := range []string{"hello", "!unknown thing", "?hy q", "!"} {
		b.HandleMessage(context.Background(), out, message(c))
	}

	assert.Empty(t, out.log)
}

func TestErrorReason(t *testing.T) {
	assert.Equal(t, "timeout", errorReason(context.DeadlineExceeded))
	assert.Equal(t, "*errors.errorString", errorReason(fmt.Errorf("wrap: %w", errors.New("odd"))))
}
