package bot

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/korjavin/studybot/database"
	"github.com/korjavin/studybot/experiment"
	"github.com/korjavin/studybot/stimuli"
	"go.uber.org/zap"
)

const defaultIdleTimeout = 24 * time.Hour

const (
	cmdStart  = "start"
	cmdStatus = "status"
	cmdHelp   = "help"
)

// Sender is the part of the Telegram API the bot uses. *tgbotapi.BotAPI implements it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Options configures a Bot
type Options struct {
	DB            *database.DB
	Recorder      *database.SessionLog
	Document      *stimuli.Document
	Variant       *experiment.Variant
	AssetsDir     string
	SubmitTimeout time.Duration
	// IdleTimeout drops a chat's in-memory session after this long without input.
	IdleTimeout time.Duration
	Logger      *zap.SugaredLogger
	// NewRand seeds each session's shuffle and coin flips. Defaults to a time seed.
	NewRand func() *rand.Rand
}

// participant is one chat's run through the experiment
type participant struct {
	ctrl     *experiment.Controller
	form     demographicsForm
	lastSeen time.Time
}

// Bot represents the Telegram bot. Each chat is one participant session.
// Updates are handled on a single goroutine so a chat's events stay ordered.
type Bot struct {
	api       Sender
	db        *database.DB
	recorder  *database.SessionLog
	doc       *stimuli.Document
	variant   *experiment.Variant
	assetsDir string
	timeout   time.Duration
	idle      time.Duration
	log       *zap.SugaredLogger
	newRand   func() *rand.Rand
	now       func() time.Time

	participants map[int64]*participant
}

// New creates a new bot instance
func New(api Sender, opts Options) (*Bot, error) {
	if opts.DB == nil || opts.Recorder == nil {
		return nil, errors.New("database and recorder are required")
	}
	if opts.Document == nil || opts.Variant == nil {
		return nil, errors.New("stimulus document and experiment are required")
	}
	b := &Bot{
		api:          api,
		db:           opts.DB,
		recorder:     opts.Recorder,
		doc:          opts.Document,
		variant:      opts.Variant,
		assetsDir:    opts.AssetsDir,
		timeout:      opts.SubmitTimeout,
		idle:         opts.IdleTimeout,
		log:          opts.Logger,
		newRand:      opts.NewRand,
		now:          time.Now,
		participants: make(map[int64]*participant),
	}
	if b.log == nil {
		b.log = zap.NewNop().Sugar()
	}
	if b.idle <= 0 {
		b.idle = defaultIdleTimeout
	}
	if b.newRand == nil {
		b.newRand = func() *rand.Rand {
			return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
		}
	}
	return b, nil
}

// Start listens for updates until ctx is cancelled
func (b *Bot) Start(ctx context.Context) error {
	b.log.Infow("starting bot polling", "experiment", b.variant.Name)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	sweep := time.NewTicker(max(b.idle/4, time.Second))
	defer sweep.Stop()

	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case <-sweep.C:
			b.evictIdle()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// evictIdle drops sessions with no input for the idle timeout. Unsubmitted
// responses of an evicted session are discarded; completed sessions are
// still recognised from the database.
func (b *Bot) evictIdle() {
	cutoff := b.now().Add(-b.idle)
	for chatID, p := range b.participants {
		if p.lastSeen.After(cutoff) {
			continue
		}
		s := p.ctrl.Session()
		b.recorder.Discard(s.ID)
		delete(b.participants, chatID)
		b.log.Infow("evicted idle session", "chat", chatID, "session", s.ID, "phase", s.Phase)
	}
}

// touch marks the chat's session as active
func (b *Bot) touch(chatID int64) {
	if p, ok := b.participants[chatID]; ok {
		p.lastSeen = b.now()
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

// handleMessage processes incoming messages
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.Chat == nil {
		return
	}
	chatID := message.Chat.ID
	b.log.Debugw("received message", "chat", chatID, "text", message.Text)
	b.touch(chatID)

	switch {
	case strings.HasPrefix(message.Text, "/"+cmdStart):
		b.handleStartCommand(ctx, chatID)
	case strings.HasPrefix(message.Text, "/"+cmdStatus):
		b.handleStatusCommand(chatID)
	case strings.HasPrefix(message.Text, "/"+cmdHelp):
		b.sendMessage(chatID, helpText)
	default:
		b.handleText(ctx, chatID, message.Text)
	}
}

const helpText = `This bot runs a short video study.

Commands:
/start - Begin the study
/status - Show your progress
/help - Show this message

Use the buttons under each message to answer. When a question asks you to type, reply with a message.`

// handleStartCommand assigns a condition and starts a new session for the chat
func (b *Bot) handleStartCommand(ctx context.Context, chatID int64) {
	if p, ok := b.participants[chatID]; ok {
		s := p.ctrl.Session()
		if s.Phase == experiment.PhaseComplete {
			b.sendMessage(chatID, fmt.Sprintf("You have already completed the study. Your completion code is: %s", s.CompletionCode))
		} else {
			b.sendMessage(chatID, "Your session is already in progress. Use the buttons on the last message to continue.")
		}
		return
	}

	done, ok, err := b.db.CompletedSession(ctx, chatID, b.variant.Name)
	if err != nil {
		b.log.Errorw("failed to look up completed session", "chat", chatID, "error", err)
	} else if ok {
		b.sendMessage(chatID, fmt.Sprintf("You have already completed the study. Your completion code is: %s", done.CompletionCode))
		return
	}

	p, err := b.newParticipant(ctx, chatID)
	if err != nil {
		b.log.Errorw("failed to start session", "chat", chatID, "error", err)
		b.sendMessage(chatID, "Sorry, the study could not be started. Please try again later.")
		return
	}
	b.participants[chatID] = p

	b.sendMessage(chatID, "Welcome! Thank you for taking part in this study.")
	if err := p.ctrl.Start(ctx); err != nil {
		b.log.Errorw("failed to start controller", "chat", chatID, "error", err)
	}
}

func (b *Bot) newParticipant(ctx context.Context, chatID int64) (*participant, error) {
	condition, counterbalance, err := b.db.NextAssignment(ctx, b.variant.Name, b.variant.Conditions)
	if err != nil {
		return nil, fmt.Errorf("assign condition: %w", err)
	}

	rng := b.newRand()
	cfg, err := experiment.NewConfiguration(b.doc, b.variant, condition, counterbalance, rng)
	if err != nil {
		return nil, err
	}

	session := experiment.NewSession(chatID)
	if err := b.recorder.StartSession(ctx, session.Summary(cfg)); err != nil {
		return nil, err
	}

	ctrl := experiment.NewController(cfg, session, b, b.recorder, experiment.Options{
		SubmitTimeout: b.timeout,
		Rand:          rng,
		Logger:        b.log,
	})
	return &participant{ctrl: ctrl, lastSeen: b.now()}, nil
}

// handleStatusCommand reports the participant's progress
func (b *Bot) handleStatusCommand(chatID int64) {
	p, ok := b.participants[chatID]
	if !ok {
		b.sendMessage(chatID, "You have not started yet. Use /start to begin.")
		return
	}
	s := p.ctrl.Session()
	cfg := p.ctrl.Config()

	text := fmt.Sprintf("Stage: %s", s.Phase)
	switch s.Phase {
	case experiment.PhaseIntroduction:
		text += fmt.Sprintf("\nSlide %d of %d", s.Index+1, len(cfg.Slides))
	case experiment.PhaseTrial:
		text += fmt.Sprintf("\nClip %d of %d", s.Index+1, cfg.Trials.Len())
	case experiment.PhaseComplete:
		text += fmt.Sprintf("\nCompletion code: %s", s.CompletionCode)
	}
	b.sendMessage(chatID, text)
}

// dispatch feeds one event to the chat's controller and reports participant errors
func (b *Bot) dispatch(ctx context.Context, chatID int64, ev experiment.Event) error {
	p, ok := b.participants[chatID]
	if !ok {
		b.sendMessage(chatID, "Please use /start to begin the study.")
		return nil
	}

	err := p.ctrl.Handle(ctx, ev)
	switch {
	case err == nil:
	case errors.Is(err, experiment.ErrPersistence):
		// The view already offered a retry.
	case errors.Is(err, experiment.ErrIncompleteAnswers):
		b.sendMessage(chatID, "Please answer every question before submitting.")
	case errors.Is(err, experiment.ErrInvalidResponse), errors.Is(err, experiment.ErrUnexpectedEvent):
		b.log.Debugw("ignored participant input", "chat", chatID, "event", fmt.Sprintf("%T", ev), "error", err)
	default:
		b.log.Errorw("failed to handle event", "chat", chatID, "event", fmt.Sprintf("%T", ev), "error", err)
		b.sendMessage(chatID, "Sorry, something went wrong. Please try again.")
	}
	return err
}

func (b *Bot) assetPath(name string) string {
	return filepath.Join(b.assetsDir, name)
}

// sendMessage sends a text message
func (b *Bot) sendMessage(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

// sendKeyboard sends a text message with inline buttons
func (b *Bot) sendKeyboard(chatID int64, text string, rows ...[]tgbotapi.InlineKeyboardButton) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.send(msg)
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.log.Warnw("error sending message", "error", err)
	}
}

// sendImage sends an image with caption
func (b *Bot) sendImage(chatID int64, name, caption string) {
	path := b.assetPath(name)
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(path))
	photo.Caption = caption

	if _, err := b.api.Send(photo); err != nil {
		b.log.Warnw("error sending image", "path", path, "error", err)
		// Fall back to text message if image sending fails
		b.sendMessage(chatID, fmt.Sprintf("%s\n\n(Note: Image could not be sent: %s)", caption, name))
	}
}

// sendVideo sends a video clip with caption
func (b *Bot) sendVideo(chatID int64, name, caption string) {
	path := b.assetPath(name)
	video := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(path))
	video.Caption = caption

	if _, err := b.api.Send(video); err != nil {
		b.log.Warnw("error sending video", "path", path, "error", err)
		b.sendMessage(chatID, fmt.Sprintf("%s\n\n(Note: Video could not be sent: %s)", caption, name))
	}
}

// sendCallbackResponse acknowledges a button press
func (b *Bot) sendCallbackResponse(callbackID, text string) {
	callback := tgbotapi.NewCallback(callbackID, text)
	if _, err := b.api.Request(callback); err != nil {
		b.log.Warnw("error sending callback response", "error", err)
	}
}

// clearKeyboard removes the buttons from an answered message
func (b *Bot) clearKeyboard(chatID int64, messageID int) {
	empty := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	if _, err := b.api.Request(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, empty)); err != nil {
		b.log.Debugw("error clearing keyboard", "chat", chatID, "message", messageID, "error", err)
	}
}
