package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trade_engine/internal/models"
)

var ErrNoBot = errors.New("telegram bot not configured")

type Notifier interface {
	SendService(ctx context.Context, format string, args ...any)
}

// Controller: то, что можно сделать с движком из чата.
type Controller interface {
	GetStatus() models.Status
	Kill(reason string)
	ResetKillSwitch(ctx context.Context) error
}

// Telegram: сервисные сообщения, подтверждения входа и команды
// /status, /kill, /resume. Без токена всё уходит только в лог.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
	log    *zap.Logger

	mu       sync.Mutex
	pendings map[string]*pending
	ctrl     Controller
}

type pending struct {
	ch     chan bool
	msgID  int
	prompt string
}

func NewTelegram(token string, chatID int64, log *zap.Logger) (*Telegram, error) {
	t := &Telegram{
		chatID:   chatID,
		log:      log.Named("notify"),
		pendings: make(map[string]*pending),
	}
	if token == "" {
		return t, nil
	}
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "telegram bot")
	}
	t.bot = b
	return t, nil
}

// Attach sets the engine the chat commands act on.
func (t *Telegram) Attach(c Controller) {
	t.mu.Lock()
	t.ctrl = c
	t.mu.Unlock()
}

func (t *Telegram) enabled() bool { return t != nil && t.bot != nil && t.chatID != 0 }

func (t *Telegram) Send(msg string) {
	if !t.enabled() {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		t.log.Warn("telegram send failed", zap.Error(err))
	}
}

// SendService logs the message and mirrors it to the chat.
func (t *Telegram) SendService(_ context.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	t.log.Info(msg)
	t.Send(msg)
}

// parseCallback splits "CONF::token" / "REJ::token".
func parseCallback(data string) (verb, token string) {
	verb, token, ok := strings.Cut(data, "::")
	if !ok {
		return "", ""
	}
	return verb, token
}

// HandleCallback должен вызываться из Start() для callback_query.
func (t *Telegram) HandleCallback(cb *tgbot.CallbackQuery) {
	if !t.enabled() || cb == nil {
		return
	}
	// ответ Telegram для остановки спиннера
	_, _ = t.bot.Request(tgbot.NewCallback(cb.ID, ""))

	verb, token := parseCallback(cb.Data)
	if verb == "" || token == "" {
		return
	}
	accepted := verb == "CONF"
	p, ok := t.resolve(token, accepted)
	if !ok {
		return
	}

	status, emoji := "Отклонено", "❌"
	if accepted {
		status, emoji = "Подтверждено", "✅"
	}
	_ = t.editReplyMarkupRemove(p.msgID)
	_ = t.editText(p.msgID, fmt.Sprintf("%s\n\n%s %s", p.prompt, emoji, status))
}

// resolve delivers an answer to a waiting Confirm exactly once.
func (t *Telegram) resolve(token string, accepted bool) (*pending, bool) {
	t.mu.Lock()
	p, ok := t.pendings[token]
	delete(t.pendings, token)
	t.mu.Unlock()
	if !ok {
		return nil, false
	}
	p.ch <- accepted
	return p, true
}

func (t *Telegram) editReplyMarkupRemove(msgID int) error {
	rm := tgbot.InlineKeyboardMarkup{InlineKeyboard: [][]tgbot.InlineKeyboardButton{}}
	_, err := t.bot.Request(tgbot.NewEditMessageReplyMarkup(t.chatID, msgID, rm))
	return err
}

func (t *Telegram) editText(msgID int, text string) error {
	_, err := t.bot.Request(tgbot.NewEditMessageText(t.chatID, msgID, text))
	return err
}

// Confirm: сообщение с кнопками и ожиданием ответа до ctx.Done().
// Returns ErrNoBot without a configured chat and ctx.Err() when nobody answered.
func (t *Telegram) Confirm(ctx context.Context, prompt string) (bool, error) {
	if !t.enabled() {
		return false, ErrNoBot
	}
	token := fmt.Sprintf("%d", time.Now().UnixNano())
	p := &pending{ch: make(chan bool, 1), prompt: prompt}

	btnYes := tgbot.NewInlineKeyboardButtonData("✅ Войти", "CONF::"+token)
	btnNo := tgbot.NewInlineKeyboardButtonData("❌ Пропустить", "REJ::"+token)
	msg := tgbot.NewMessage(t.chatID, prompt)
	msg.ReplyMarkup = tgbot.NewInlineKeyboardMarkup(tgbot.NewInlineKeyboardRow(btnYes, btnNo))

	sent, err := t.bot.Send(msg)
	if err != nil {
		return false, errors.Wrap(err, "send confirm")
	}
	p.msgID = sent.MessageID
	t.mu.Lock()
	t.pendings[token] = p
	t.mu.Unlock()

	select {
	case ok := <-p.ch:
		return ok, nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pendings, token)
		t.mu.Unlock()
		_ = t.editReplyMarkupRemove(p.msgID)
		_ = t.editText(p.msgID, fmt.Sprintf("%s\n\n⏳ Таймаут", prompt))
		return false, ctx.Err()
	}
}

// command runs a chat command and returns the reply.
func (t *Telegram) command(ctx context.Context, name, args string) string {
	t.mu.Lock()
	ctrl := t.ctrl
	t.mu.Unlock()
	if ctrl == nil {
		return "❗️ Движок ещё не запущен"
	}
	switch name {
	case "status":
		return FormatStatus(ctrl.GetStatus())
	case "kill":
		reason := strings.TrimSpace(args)
		if reason == "" {
			reason = "telegram"
		}
		ctrl.Kill(reason)
		return "🛑 Kill switch включён: " + reason
	case "resume":
		if err := ctrl.ResetKillSwitch(ctx); err != nil {
			return "❗️ " + err.Error()
		}
		return "▶️ Kill switch сброшен"
	default:
		return "Команды: /status, /kill [причина], /resume"
	}
}

// FormatStatus renders a status snapshot for chat.
func FormatStatus(st models.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s: %s\n", st.Symbol, st.State)
	fmt.Fprintf(&b, "balance=%.2f day_pnl=%.2f trades=%d\n", st.Balance, st.Daily.RealizedPnL, st.Daily.Trades)
	if p := st.Position; p != nil {
		fmt.Fprintf(&b, "%s qty=%.6f @ %.6f SL=%.6f TP=%.6f uPnL=%.2f\n",
			p.Side, p.Quantity, p.EntryPrice, p.StopLoss, p.TakeProfit, p.UnrealizedPnL)
	} else {
		b.WriteString("📭 Позиции нет\n")
	}
	if st.KillSwitch {
		fmt.Fprintf(&b, "🛑 kill switch: %s\n", st.KillReason)
	}
	if st.LockReason != "" {
		fmt.Fprintf(&b, "⛔ lock: %s\n", st.LockReason)
	}
	if st.Degraded {
		b.WriteString("⚠️ degraded: состояние не сохраняется\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Start: long-polling для messages + callback_query.
func (t *Telegram) Start(ctx context.Context) {
	if !t.enabled() {
		return
	}
	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "callback_query"}

	updates := t.bot.GetUpdatesChan(u)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd := <-updates:
				if upd.CallbackQuery != nil {
					t.HandleCallback(upd.CallbackQuery)
				}
				m := upd.Message
				if m != nil && m.Chat != nil && m.Chat.ID == t.chatID && m.IsCommand() {
					t.Send(t.command(ctx, m.Command(), m.CommandArguments()))
				}
			}
		}
	}()
}

func (t *Telegram) Stop() {
	if t.enabled() {
		t.bot.StopReceivingUpdates()
	}
}
