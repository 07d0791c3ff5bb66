// Package discord serves the assistant as a Discord bot.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"codeqa/internal/llm"
	"codeqa/internal/metrics"
	"codeqa/internal/service"
)

const (
	usageHint     = "Please ask a question about the Hytale server codebase after the command!\nExample: `!hy How does the weather system work?`"
	processing    = "Processing..."
	trimmedNotice = "Conversation history was trimmed to prevent token overflow."
	failedNotice  = "Sorry, something went wrong. Please wait and try again."
	clearedNotice = "Your conversation history has been cleared!"
)

// AssistantPort is the subset of service.Assistant the bot needs.
type AssistantPort interface {
	Ask(ctx context.Context, key, query string) (service.Reply, error)
	Clear(ctx context.Context, key string) (bool, error)
}

// Messenger is the part of *discordgo.Session used to reply.
type Messenger interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Bot struct {
	assistant AssistantPort
	metrics   metrics.Recorder
	prefix    string
	log       *zap.Logger
}

func NewBot(assistant AssistantPort, rec metrics.Recorder, prefix string, log *zap.Logger) *Bot {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if prefix == "" {
		prefix = "!"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bot{assistant: assistant, metrics: rec, prefix: prefix, log: log}
}

// Run connects with token and serves until ctx is done.
func (b *Bot) Run(ctx context.Context, token string) error {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		name := r.User.String()
		b.log.Info("discord bot connected", zap.String("user", name))
		b.metrics.Startup(name)
	})
	dg.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot || (s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID) {
			return
		}
		b.HandleMessage(ctx, s, m.Message)
	})

	if err := dg.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	defer dg.Close()
	<-ctx.Done()
	return nil
}

// HandleMessage dispatches one incoming message.
func (b *Bot) HandleMessage(ctx context.Context, out Messenger, m *discordgo.Message) {
	cmd, arg, ok := b.parse(m.Content)
	if !ok {
		return
	}
	switch cmd {
	case "hy", "askhy":
		b.ask(ctx, out, m, arg)
	case "clear":
		b.clear(ctx, out, m)
	}
}

func (b *Bot) parse(content string) (cmd, arg string, ok bool) {
	if !strings.HasPrefix(content, b.prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(content, b.prefix)
	cmd, arg, _ = strings.Cut(rest, " ")
	if i := strings.IndexAny(cmd, "\n\t"); i >= 0 {
		arg = cmd[i+1:] + " " + arg
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), strings.TrimSpace(arg), cmd != ""
}

func (b *Bot) ask(ctx context.Context, out Messenger, m *discordgo.Message, query string) {
	start := time.Now()
	userID := m.Author.ID
	inv := metrics.Invocation{Command: "hy", UserID: userID}

	if query == "" {
		b.send(out, m.ChannelID, usageHint)
		inv.Duration = time.Since(start)
		inv.Reason = "empty_query"
		b.metrics.CommandInvocation(inv)
		return
	}
	inv.QueryChars = len([]rune(query))

	placeholder, err := out.ChannelMessageSend(m.ChannelID, processing)
	if err != nil {
		b.log.Error("send placeholder", zap.Error(err))
		return
	}

	reply, err := b.assistant.Ask(ctx, userID, query)
	inv.NewConversation = reply.NewConversation
	if reply.NewConversation {
		b.metrics.NewConversation(userID)
	}
	if err != nil {
		b.log.Error("turn failed", zap.String("user", userID), zap.Error(err))
		b.edit(out, m.ChannelID, placeholder.ID, failedNotice)
		inv.Duration = time.Since(start)
		inv.Reason = errorReason(err)
		b.metrics.CommandInvocation(inv)
		return
	}

	chunks := nonBlank(reply.Chunks)
	if len(chunks) == 0 {
		chunks = []string{"(empty response)"}
	}
	b.edit(out, m.ChannelID, placeholder.ID, chunks[0])
	for _, c := range chunks[1:] {
		b.send(out, m.ChannelID, c)
	}
	if reply.Trimmed {
		b.send(out, m.ChannelID, trimmedNotice)
	}

	inv.Success = true
	inv.Duration = time.Since(start)
	inv.ResponseChunks = len(chunks)
	inv.HistoryTrimmed = reply.Trimmed
	b.metrics.CommandInvocation(inv)
}

func (b *Bot) clear(ctx context.Context, out Messenger, m *discordgo.Message) {
	start := time.Now()
	existed, err := b.assistant.Clear(ctx, m.Author.ID)
	inv := metrics.Invocation{Command: "clear", UserID: m.Author.ID, HistoryExisted: existed}
	if err != nil {
		b.log.Error("clear failed", zap.Error(err))
		b.send(out, m.ChannelID, failedNotice)
		inv.Reason = errorReason(err)
	} else {
		b.send(out, m.ChannelID, clearedNotice)
		inv.Success = true
	}
	inv.Duration = time.Since(start)
	b.metrics.CommandInvocation(inv)
}

func (b *Bot) send(out Messenger, channelID, content string) {
	if _, err := out.ChannelMessageSend(channelID, content); err != nil {
		b.log.Error("send message", zap.String("channel", channelID), zap.Error(err))
	}
}

func (b *Bot) edit(out Messenger, channelID, messageID, content string) {
	if _, err := out.ChannelMessageEdit(channelID, messageID, content); err != nil {
		b.log.Error("edit message", zap.String("channel", channelID), zap.Error(err))
	}
}

// errorReason names the failure for metrics: the provider error kind when
// known, otherwise the Go type of the innermost error.
func errorReason(err error) string {
	if kind := llm.Classify(err); kind != llm.KindUnknown {
		return kind.String()
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}

// Discord rejects empty messages.
func nonBlank(chunks []string) []string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}
