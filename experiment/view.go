package experiment

import (
	"context"

	"github.com/korjavin/studybot/models"
)

// View renders the controller's screens. Implementations report their own delivery errors.
type View interface {
	ShowBotCheck(s *Session, challenge int)
	ShowBotCheckResult(s *Session, passed bool)
	ShowInstructions(s *Session, text string)
	ShowSlide(s *Session, slide SlideView)
	ShowComprehension(s *Session, questions []models.CheckQuestion)
	ShowComprehensionFailed(s *Session)
	ShowTrial(s *Session, p Presentation)
	ShowDemographics(s *Session)
	ShowSubmitting(s *Session)
	ShowSubmitFailed(s *Session)
	ShowComplete(s *Session, completionCode string)
}

// Recorder persists responses and session metadata
type Recorder interface {
	Record(ctx context.Context, rec models.ResponseRecord) error
	RecordUnstructured(ctx context.Context, sessionID, key, value string) error
	// PersistSession flushes everything recorded for the session.
	PersistSession(ctx context.Context, sessionID string) error
	// Finalize marks the session done and returns the participant's completion code.
	Finalize(ctx context.Context, sessionID string) (string, error)
}
