package bot

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/onoki/glance/internal/model"
)

const maxSearchResults = 10

// DigestBuilder renders the dashboard summary.
type DigestBuilder interface {
	Build(ctx context.Context, now time.Time) (string, error)
}

// Searcher runs a task search.
type Searcher interface {
	Query(ctx context.Context, raw string) ([]model.TaskView, error)
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier pushes the daily digest to a fixed set of chats and answers a
// few read-only commands from those chats.
type Notifier struct {
	api     *tgbotapi.BotAPI
	send    sender
	chats   map[int64]struct{}
	chatIDs []int64
	digest  DigestBuilder
	search  Searcher
	log     *slog.Logger
	now     func() time.Time
}

func New(token string, chatIDs []int64, digest DigestBuilder, search Searcher, log *slog.Logger) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Info("bot authorized", slog.String("account", api.Self.UserName))

	n := newNotifier(api, chatIDs, digest, search, log)
	n.api = api
	return n, nil
}

func newNotifier(s sender, chatIDs []int64, digest DigestBuilder, search Searcher, log *slog.Logger) *Notifier {
	chats := make(map[int64]struct{}, len(chatIDs))
	for _, id := range chatIDs {
		chats[id] = struct{}{}
	}
	return &Notifier{
		send:    s,
		chats:   chats,
		chatIDs: chatIDs,
		digest:  digest,
		search:  search,
		log:     log,
		now:     time.Now,
	}
}

// SendDigest sends the current digest to every configured chat. A failed
// chat is logged and does not stop the others.
func (n *Notifier) SendDigest(ctx context.Context) error {
	text, err := n.digest.Build(ctx, n.now())
	if err != nil {
		return fmt.Errorf("build digest: %w", err)
	}
	for _, id := range n.chatIDs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := n.sendText(id, text); err != nil {
			n.log.Error("send digest", slog.Int64("chat_id", id), slog.Any("error", err))
		}
	}
	return nil
}

// Start polls updates until ctx is cancelled.
func (n *Notifier) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := n.api.GetUpdatesChan(updateConfig)

	n.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		n.api.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil {
			continue
		}
		if err := n.handleMessage(ctx, update.Message); err != nil {
			n.log.Error("handle message", slog.Any("error", err))
		}
	}
	return ctx.Err()
}

func (n *Notifier) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.Chat == nil || !n.allowed(msg.Chat.ID) {
		return nil
	}
	if !msg.IsCommand() {
		return nil
	}
	n.log.Info("command", slog.Int64("chat_id", msg.Chat.ID), slog.String("command", msg.Command()))

	switch msg.Command() {
	case "start", "help":
		return n.sendText(msg.Chat.ID, helpText)
	case "today":
		text, err := n.digest.Build(ctx, n.now())
		if err != nil {
			return n.sendText(msg.Chat.ID, "Could not build the digest: "+html.EscapeString(err.Error()))
		}
		return n.sendText(msg.Chat.ID, text)
	case "search":
		q := strings.TrimSpace(msg.CommandArguments())
		if q == "" {
			return n.sendText(msg.Chat.ID, "Usage: /search &lt;words&gt;")
		}
		views, err := n.search.Query(ctx, q)
		if err != nil {
			return n.sendText(msg.Chat.ID, "Search failed: "+html.EscapeString(err.Error()))
		}
		return n.sendText(msg.Chat.ID, formatResults(q, views))
	default:
		return n.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

const helpText = "ℹ️ <b>Glance</b>\n" +
	"• /today - today's digest\n" +
	"• /search &lt;words&gt; - find tasks"

func (n *Notifier) allowed(chatID int64) bool {
	_, ok := n.chats[chatID]
	return ok
}

func (n *Notifier) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := n.send.Send(msg)
	return err
}

func formatResults(q string, views []model.TaskView) string {
	if len(views) == 0 {
		return fmt.Sprintf("🔍 Nothing found for <i>%s</i>", html.EscapeString(q))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🔍 <b>%d</b> result(s) for <i>%s</i>\n", len(views), html.EscapeString(q))
	for i, v := range views {
		if i == maxSearchResults {
			fmt.Fprintf(&b, "… and %d more\n", len(views)-maxSearchResults)
			break
		}
		mark := "•"
		if v.CompletedAt != nil {
			mark = "✓"
		}
		fmt.Fprintf(&b, "%s %s\n", mark, html.EscapeString(shortTitle(v.PlainTitle(), 60)))
	}
	return strings.TrimSpace(b.String())
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	if clean == "" {
		return "(untitled)"
	}
	if utf8.RuneCountInString(clean) <= maxLen {
		return clean
	}
	runes := []rune(clean)
	return string(runes[:maxLen-1]) + "…"
}
