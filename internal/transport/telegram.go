package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/modqueue/modq/internal/record"
)

const (
	callbackApprove = "approve"
	callbackReject  = "reject"
)

// Telegram delivers prompts to a single admin chat via the Bot API and
// turns inline-button callbacks into decision events. Commands:
// /start greets, /pending asks the engine to re-list pending records.
type Telegram struct {
	bot       *tgbotapi.BotAPI
	admin     int64
	decisions chan Decision
	commands  chan Command
	done      chan struct{}
}

// NewTelegram authorizes against the Bot API and starts the update loop.
// A bad token or unreachable API fails here, so startup can abort early.
func NewTelegram(cfg Config) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram transport requires a bot token")
	}
	if cfg.AdminChatID == 0 {
		return nil, fmt.Errorf("telegram transport requires admin_chat_id")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram authorization failed: %w", err)
	}
	bot.Debug = cfg.Debug

	t := &Telegram{
		bot:       bot,
		admin:     cfg.AdminChatID,
		decisions: make(chan Decision, 16),
		commands:  make(chan Command, 16),
		done:      make(chan struct{}),
	}
	go t.poll()
	return t, nil
}

func (t *Telegram) poll() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)
	for {
		select {
		case <-t.done:
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			t.handleUpdate(upd)
		}
	}
}

func (t *Telegram) handleUpdate(upd tgbotapi.Update) {
	switch {
	case upd.CallbackQuery != nil:
		cq := upd.CallbackQuery
		// Ack first so the client stops its spinner even if the decision
		// is later rejected as stale.
		if _, err := t.bot.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			slog.Warn("telegram callback ack failed", "error", err)
		}
		action, ref, ok := strings.Cut(cq.Data, "|")
		if !ok {
			slog.Warn("telegram callback with malformed data", "data", cq.Data)
			return
		}
		var v record.Verdict
		switch action {
		case callbackApprove:
			v = record.VerdictApprove
		case callbackReject:
			v = record.VerdictReject
		default:
			slog.Warn("telegram callback with unknown action", "action", action)
			return
		}
		t.decisions <- Decision{Ref: ref, Verdict: v}
	case upd.Message != nil && upd.Message.IsCommand():
		switch upd.Message.Command() {
		case "start":
			msg := tgbotapi.NewMessage(upd.Message.Chat.ID,
				"Hi! Use /pending to list posts awaiting approval.")
			if _, err := t.bot.Send(msg); err != nil {
				slog.Warn("telegram send failed", "error", err)
			}
		case "pending":
			t.commands <- Command{Kind: CommandList}
		}
	}
}

func (t *Telegram) SendPrompt(_ context.Context, p Prompt) (Handle, error) {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", callbackApprove+"|"+p.Ref),
			tgbotapi.NewInlineKeyboardButtonData("❌ Reject", callbackReject+"|"+p.Ref),
		),
	)
	msg := tgbotapi.NewMessage(t.admin, p.Text)
	msg.ReplyMarkup = kb
	sent, err := t.bot.Send(msg)
	if err != nil {
		return "", fmt.Errorf("telegram send prompt: %w", err)
	}
	return Handle(strconv.FormatInt(t.admin, 10) + ":" + strconv.Itoa(sent.MessageID)), nil
}

func (t *Telegram) UpdatePrompt(_ context.Context, h Handle, finalText string) error {
	chatID, msgID, err := splitHandle(h)
	if err != nil {
		return err
	}
	// NewEditMessageText carries no reply markup, which drops the buttons.
	edit := tgbotapi.NewEditMessageText(chatID, msgID, finalText)
	if _, err := t.bot.Send(edit); err != nil {
		return fmt.Errorf("telegram edit prompt: %w", err)
	}
	return nil
}

func (t *Telegram) Notify(_ context.Context, text string) error {
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.admin, text)); err != nil {
		return fmt.Errorf("telegram notify: %w", err)
	}
	return nil
}

func (t *Telegram) Decisions() <-chan Decision { return t.decisions }
func (t *Telegram) Commands() <-chan Command   { return t.commands }

func (t *Telegram) Close() error {
	select {
	case <-t.done:
		return nil
	default:
	}
	close(t.done)
	t.bot.StopReceivingUpdates()
	// decisions/commands stay open; the poll goroutine may still be
	// draining an in-flight update. Consumers stop via their own quit.
	return nil
}

func splitHandle(h Handle) (chatID int64, msgID int, err error) {
	c, m, ok := strings.Cut(string(h), ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed prompt handle %q", h)
	}
	chatID, err = strconv.ParseInt(c, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed prompt handle %q", h)
	}
	msgID, err = strconv.Atoi(m)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed prompt handle %q", h)
	}
	return chatID, msgID, nil
}
