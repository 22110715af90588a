package bot

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/korjavin/studybot/experiment"
	"github.com/korjavin/studybot/models"
)

// Callback data sent by inline buttons
const (
	cbNextPrefix   = "next:"
	cbCheckPrefix  = "check:"
	cbSubmitChecks = "checks:submit"
	cbRatePrefix   = "rate:"
	cbPickPrefix   = "pick:"
	cbSexPrefix    = "sex:"
	cbSkip         = "skip"
	cbRetry        = "retry"
)

const scaleRowSize = 6

var sexOptions = []struct{ value, label string }{
	{"female", "Female"},
	{"male", "Male"},
	{"other", "Other"},
	{"undisclosed", "Prefer not to say"},
}

var _ experiment.View = (*Bot)(nil)

// text returns a document override for key, or def
func (b *Bot) text(key, def string) string {
	if t := strings.TrimSpace(b.doc.Text[key]); t != "" {
		return t
	}
	return def
}

// continueData names the screen a Continue button belongs to: "next:<phase>:<index>"
func continueData(s *experiment.Session) string {
	return fmt.Sprintf("%s%d:%d", cbNextPrefix, int(s.Phase), s.Index)
}

func continueRow(s *experiment.Session, label string) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, continueData(s)))
}

func (b *Bot) ShowBotCheck(s *experiment.Session, challenge int) {
	image := path.Join("botcheck", strconv.Itoa(challenge)+".png")
	b.sendImage(s.ChatID, image, b.text("bot_check", "Before we begin: please type the name written in this picture."))
}

func (b *Bot) ShowBotCheckResult(s *experiment.Session, passed bool) {
	if passed {
		b.sendKeyboard(s.ChatID, "Thank you, that is correct.", continueRow(s, "Continue"))
		return
	}
	b.sendKeyboard(s.ChatID, "Sorry, that is not the name in the picture.", continueRow(s, "Try again"))
}

func (b *Bot) ShowInstructions(s *experiment.Session, text string) {
	if strings.TrimSpace(text) == "" {
		text = "Please read the following introduction carefully."
	}
	b.sendKeyboard(s.ChatID, text, continueRow(s, "Continue"))
}

func (b *Bot) ShowSlide(s *experiment.Session, slide experiment.SlideView) {
	b.sendImage(s.ChatID, slide.Slide.Name, fmt.Sprintf("Introduction %d of %d", slide.Index+1, slide.Total))
	if slide.Video != nil {
		b.sendVideo(s.ChatID, slide.Video.Name, "")
	}
	b.sendKeyboard(s.ChatID, "Press Continue when you are ready.", continueRow(s, "Continue"))
}

func (b *Bot) ShowComprehension(s *experiment.Session, questions []models.CheckQuestion) {
	b.sendMessage(s.ChatID, b.text("comprehension", "Please answer the following questions about the instructions."))
	for _, q := range questions {
		var rows [][]tgbotapi.InlineKeyboardButton
		for _, opt := range q.Options {
			data := cbCheckPrefix + q.ID + ":" + opt.Value
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(opt.Text, data)))
		}
		b.sendKeyboard(s.ChatID, q.Prompt, rows...)
	}
	b.sendKeyboard(s.ChatID, "When you have answered every question, press Submit.",
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Submit", cbSubmitChecks)))
}

func (b *Bot) ShowComprehensionFailed(s *experiment.Session) {
	b.sendMessage(s.ChatID, b.text("comprehension_failed", "Some of your answers were not correct. Please read the instructions again."))
}

func (b *Bot) ShowTrial(s *experiment.Session, p experiment.Presentation) {
	prefix := fmt.Sprintf("Clip %d of %d", p.Index+1, p.Total)
	if len(p.Videos) == 2 {
		b.sendVideo(s.ChatID, p.Videos[0], prefix+": first video")
		b.sendVideo(s.ChatID, p.Videos[1], prefix+": second video")
	} else {
		for _, v := range p.Videos {
			b.sendVideo(s.ChatID, v, prefix)
		}
	}
	b.sendKeyboard(s.ChatID, questionText(p), trialKeyboard(p)...)
}

func questionText(p experiment.Presentation) string {
	text := p.Question.Question
	if len(p.Videos) == 2 || len(p.Question.Labels) == 0 {
		return text
	}
	labels := p.Question.Labels
	var sb strings.Builder
	sb.WriteString(text)
	sb.WriteString("\n")
	for i, v := range p.Scale.Anchors(len(labels)) {
		fmt.Fprintf(&sb, "\n%d = %s", v, labels[i])
	}
	return sb.String()
}

func trialKeyboard(p experiment.Presentation) [][]tgbotapi.InlineKeyboardButton {
	var rows [][]tgbotapi.InlineKeyboardButton
	if len(p.Videos) == 2 {
		for i, label := range p.Question.Labels {
			data := fmt.Sprintf("%s%d:%d", cbPickPrefix, p.Index, i)
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, data)))
		}
		return rows
	}

	var row []tgbotapi.InlineKeyboardButton
	for _, v := range p.Scale.Values() {
		value := strconv.Itoa(v)
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(value, fmt.Sprintf("%s%d:%s", cbRatePrefix, p.Index, value)))
		if len(row) == scaleRowSize {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return rows
}

func (b *Bot) ShowDemographics(s *experiment.Session) {
	if p, ok := b.participants[s.ChatID]; ok {
		p.form = demographicsForm{step: formSex}
	}
	var row []tgbotapi.InlineKeyboardButton
	for _, opt := range sexOptions {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(opt.label, cbSexPrefix+opt.value))
	}
	b.sendKeyboard(s.ChatID, "Almost done! What is your sex?", row)
}

func (b *Bot) ShowSubmitting(s *experiment.Session) {
	b.sendMessage(s.ChatID, "Saving your responses...")
}

func (b *Bot) ShowSubmitFailed(s *experiment.Session) {
	b.sendKeyboard(s.ChatID, "Your responses could not be saved. Please check your connection and try again.",
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Try again", cbRetry)))
}

func (b *Bot) ShowComplete(s *experiment.Session, completionCode string) {
	b.sendMessage(s.ChatID, fmt.Sprintf("%s\n\nYour completion code is: %s",
		b.text("thanks", "Thank you for taking part!"), completionCode))
}
