package experiment

import (
	"time"

	"github.com/google/uuid"
	"github.com/korjavin/studybot/models"
)

// BotCheckStage is the screen shown inside the bot check phase
type BotCheckStage int

const (
	BotCheckChallenge BotCheckStage = iota
	BotCheckPassed
	BotCheckFailed
)

// Presentation is what a trial activation hands to the view
type Presentation struct {
	Index    int
	Total    int
	Stimulus models.Stimulus
	// Videos in display order: one clip, or the pair after the coin flip.
	Videos   []string
	Order    string
	Question models.QuestionText
	Scale    RatingScale
}

// SlideView is one introduction activation
type SlideView struct {
	Index int
	Total int
	Slide models.Slide
	Video *models.Slide
}

// Session is the participant's progress. Nothing here survives a restart.
type Session struct {
	ID     string
	ChatID int64

	Phase Phase
	// Index is the cursor into the active phase's sequence, 0 <= Index <= len.
	Index int

	Answers      map[string]string
	Presentation *Presentation

	Challenge         int
	BotCheckStage     BotCheckStage
	BotCheckResponses []string

	SubmitFailed   bool
	CompletionCode string
	StartedAt      time.Time
}

// NewSession creates an unstarted session for a chat
func NewSession(chatID int64) *Session {
	return &Session{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		Answers:   make(map[string]string),
		StartedAt: time.Now().UTC(),
	}
}

// ContinueEvent is the Continue for the screen currently shown
func (s *Session) ContinueEvent() Continue {
	return Continue{Phase: s.Phase, Index: s.Index}
}

// Summary converts the session into its database row
func (s *Session) Summary(cfg *Configuration) models.SessionSummary {
	return models.SessionSummary{
		ID:             s.ID,
		ChatID:         s.ChatID,
		Variant:        cfg.Variant.Name,
		Condition:      cfg.Condition,
		Counterbalance: cfg.Counterbalance,
		Status:         models.StatusStarted,
		CreatedAt:      s.StartedAt,
	}
}
