// Package bot routes Telegram updates to handlers and renders portal data as
// chat messages.
package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mesbot/mesbot/internal/session"
)

// Sender is the part of the Telegram API the bot uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Config holds bot settings.
type Config struct {
	Location *time.Location
	AdminIDs []int64
	Now      func() time.Time
}

// Bot dispatches updates. Every update is handled on its own goroutine.
type Bot struct {
	api      Sender
	sessions *session.Manager
	loc      *time.Location
	admins   map[int64]bool
	now      func() time.Time
	logger   *slog.Logger

	commands map[string]handlerFunc
	texts    map[string]handlerFunc
	tokenIn  handlerFunc
	debugOn  handlerFunc
	unknown  handlerFunc

	awaitMu       sync.Mutex
	awaitingToken map[int64]bool

	wg sync.WaitGroup
}

// New creates a Bot.
func New(api Sender, sessions *session.Manager, cfg Config, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	b := &Bot{
		api:           api,
		sessions:      sessions,
		loc:           cfg.Location,
		admins:        make(map[int64]bool, len(cfg.AdminIDs)),
		now:           cfg.Now,
		logger:        logger,
		commands:      make(map[string]handlerFunc),
		texts:         make(map[string]handlerFunc),
		awaitingToken: make(map[int64]bool),
	}
	for _, id := range cfg.AdminIDs {
		b.admins[id] = true
	}
	b.routes()
	return b
}

// Run handles updates until ctx is done or the channel closes, then waits
// for in-flight handlers. Callers that share the Bot with other dispatchers
// must wait for Run to return rather than calling Wait concurrently with it.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	b.logger.Info("Bot started")
	defer func() {
		b.wg.Wait()
		b.logger.Info("Bot stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok || ctx.Err() != nil {
				return
			}
			b.Dispatch(ctx, update)
		}
	}
}

// Dispatch handles update on a new goroutine.
func (b *Bot) Dispatch(ctx context.Context, update tgbotapi.Update) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.HandleUpdate(ctx, update)
	}()
}

// Wait blocks until all dispatched updates are handled.
func (b *Bot) Wait() {
	b.wg.Wait()
}

// HandleUpdate routes a single update synchronously.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Handler panicked", "user_id", msg.From.ID, "panic", r)
		}
	}()

	req := &request{
		chatID:   msg.Chat.ID,
		userID:   msg.From.ID,
		username: msg.From.UserName,
		name:     msg.From.FirstName,
		text:     strings.TrimSpace(msg.Text),
	}
	if msg.IsCommand() {
		req.command = msg.Command()
		req.args = msg.CommandArguments()
	}
	if req.username == "" {
		req.username = req.name
	}

	h := b.route(req)
	if err := h(ctx, req); err != nil {
		b.replyError(req, err)
	}
}

func (b *Bot) route(req *request) handlerFunc {
	if req.command != "" {
		if h, ok := b.commands[req.command]; ok {
			if req.command != "token" {
				b.setAwaitingToken(req.userID, false)
			}
			return h
		}
		return b.unknown
	}

	if h, ok := b.texts[req.text]; ok {
		b.setAwaitingToken(req.userID, false)
		return h
	}
	if b.isAwaitingToken(req.userID) || strings.HasPrefix(req.text, "eyJhb") {
		return b.tokenIn
	}
	if strings.EqualFold(req.text, "debug") {
		return b.debugOn
	}
	return b.unknown
}

func (b *Bot) setAwaitingToken(userID int64, on bool) {
	b.awaitMu.Lock()
	defer b.awaitMu.Unlock()
	if on {
		b.awaitingToken[userID] = true
	} else {
		delete(b.awaitingToken, userID)
	}
}

func (b *Bot) isAwaitingToken(userID int64) bool {
	b.awaitMu.Lock()
	defer b.awaitMu.Unlock()
	return b.awaitingToken[userID]
}

func (b *Bot) isAdmin(userID int64) bool {
	return b.admins[userID]
}

func (b *Bot) localNow() time.Time {
	return b.now().In(b.loc)
}
