package bot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/korjavin/studybot/experiment"
)

type formStep int

const (
	formIdle formStep = iota
	formSex
	formAge
	formFeedback
)

// demographicsForm collects the demographics answers over several messages
type demographicsForm struct {
	step formStep
	sex  string
	age  int
}

// handleCallback processes callback queries from inline buttons
func (b *Bot) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	// Always acknowledge the callback immediately to prevent "query is too old" errors
	b.sendCallbackResponse(callback.ID, "")

	var chatID int64
	switch {
	case callback.Message != nil && callback.Message.Chat != nil:
		chatID = callback.Message.Chat.ID
	case callback.From != nil:
		chatID = callback.From.ID
	default:
		return
	}
	b.log.Debugw("handling callback", "chat", chatID, "data", callback.Data)
	b.touch(chatID)

	data := callback.Data
	var err error
	switch {
	case strings.HasPrefix(data, cbNextPrefix):
		ev, ok := parseContinue(strings.TrimPrefix(data, cbNextPrefix))
		if !ok {
			b.log.Warnw("invalid callback format", "data", data)
			return
		}
		err = b.dispatch(ctx, chatID, ev)
	case data == cbSubmitChecks:
		err = b.dispatch(ctx, chatID, experiment.SubmitChecks{})
	case data == cbRetry:
		err = b.dispatch(ctx, chatID, experiment.RetrySubmit{})
	case data == cbSkip:
		b.handleFeedback(ctx, chatID, "")
		return
	case strings.HasPrefix(data, cbSexPrefix):
		b.handleSex(chatID, strings.TrimPrefix(data, cbSexPrefix))
		return
	case strings.HasPrefix(data, cbCheckPrefix):
		id, value, ok := strings.Cut(strings.TrimPrefix(data, cbCheckPrefix), ":")
		if !ok {
			b.log.Warnw("invalid callback format", "data", data)
			return
		}
		// Selected answers stay editable until Submit.
		b.dispatch(ctx, chatID, experiment.CheckAnswer{QuestionID: id, Value: value})
		return
	case strings.HasPrefix(data, cbRatePrefix):
		index, value, ok := splitTrial(strings.TrimPrefix(data, cbRatePrefix))
		if !ok {
			b.log.Warnw("invalid callback format", "data", data)
			return
		}
		err = b.dispatch(ctx, chatID, experiment.TrialResponse{TrialIndex: index, Value: value})
	case strings.HasPrefix(data, cbPickPrefix):
		index, label, ok := splitTrial(strings.TrimPrefix(data, cbPickPrefix))
		if !ok {
			b.log.Warnw("invalid callback format", "data", data)
			return
		}
		value, ok := b.pairedLabel(chatID, label)
		if !ok {
			b.log.Warnw("invalid label in callback", "data", data)
			return
		}
		err = b.dispatch(ctx, chatID, experiment.TrialResponse{TrialIndex: index, Value: value})
	default:
		b.log.Warnw("invalid callback data", "data", data)
		return
	}

	if err == nil && callback.Message != nil {
		b.clearKeyboard(chatID, callback.Message.MessageID)
	}
}

// splitTrial parses "<trial index>:<value>"
func splitTrial(s string) (int, string, bool) {
	idx, value, ok := strings.Cut(s, ":")
	if !ok {
		return 0, "", false
	}
	index, err := strconv.Atoi(idx)
	if err != nil {
		return 0, "", false
	}
	return index, value, true
}

// parseContinue parses "<phase>:<index>"
func parseContinue(s string) (experiment.Continue, bool) {
	phase, rest, ok := strings.Cut(s, ":")
	if !ok {
		return experiment.Continue{}, false
	}
	p, err := strconv.Atoi(phase)
	if err != nil {
		return experiment.Continue{}, false
	}
	index, err := strconv.Atoi(rest)
	if err != nil {
		return experiment.Continue{}, false
	}
	return experiment.Continue{Phase: experiment.Phase(p), Index: index}, true
}

// pairedLabel maps a label position back to the label text of the session's question
func (b *Bot) pairedLabel(chatID int64, pos string) (string, bool) {
	p, ok := b.participants[chatID]
	if !ok {
		return "", false
	}
	i, err := strconv.Atoi(pos)
	labels := p.ctrl.Config().Question.Labels
	if err != nil || i < 0 || i >= len(labels) {
		return "", false
	}
	return labels[i], true
}

// handleText routes typed answers: the bot check name and the demographics form
func (b *Bot) handleText(ctx context.Context, chatID int64, text string) {
	p, ok := b.participants[chatID]
	if !ok {
		b.sendMessage(chatID, "Please use /start to begin the study.")
		return
	}

	s := p.ctrl.Session()
	switch {
	case s.Phase == experiment.PhaseBotCheck && s.BotCheckStage == experiment.BotCheckChallenge:
		b.dispatch(ctx, chatID, experiment.BotCheckAnswer{Text: text})
	case s.Phase == experiment.PhaseDemographics && p.form.step == formAge:
		age, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil || age <= 0 {
			b.sendMessage(chatID, "Please type your age as a number, for example 34.")
			return
		}
		p.form.age = age
		p.form.step = formFeedback
		b.sendKeyboard(chatID, "Do you have any comments about the study? Type them in a message, or press Skip.",
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Skip", cbSkip)))
	case s.Phase == experiment.PhaseDemographics && p.form.step == formFeedback:
		b.handleFeedback(ctx, chatID, text)
	default:
		b.sendMessage(chatID, "Please use the buttons to answer. Type /help for more information.")
	}
}

func (b *Bot) handleSex(chatID int64, value string) {
	p, ok := b.participants[chatID]
	if !ok || p.ctrl.Session().Phase != experiment.PhaseDemographics || p.form.step != formSex {
		return
	}
	p.form.sex = value
	p.form.step = formAge
	b.sendMessage(chatID, "How old are you? Please type your age in years.")
}

// handleFeedback completes the demographics form and hands it to the controller
func (b *Bot) handleFeedback(ctx context.Context, chatID int64, feedback string) {
	p, ok := b.participants[chatID]
	if !ok || p.ctrl.Session().Phase != experiment.PhaseDemographics || p.form.step != formFeedback {
		return
	}
	form := p.form
	p.form = demographicsForm{}

	b.dispatch(ctx, chatID, experiment.Demographics{
		Sex:      form.sex,
		Age:      form.age,
		Feedback: feedback,
	})
}
