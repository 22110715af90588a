package experiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/korjavin/studybot/models"
	"go.uber.org/zap"
)

const (
	defaultSubmitTimeout = 10 * time.Second
	maxAge               = 100
)

// Options tunes a Controller. Zero values get defaults.
type Options struct {
	SubmitTimeout time.Duration
	Rand          *rand.Rand
	Logger        *zap.SugaredLogger
	Now           func() time.Time
}

// Controller drives one session through the experiment phases.
// It is not safe for concurrent use; callers serialize events per session.
type Controller struct {
	cfg      *Configuration
	session  *Session
	view     View
	recorder Recorder

	rng           *rand.Rand
	log           *zap.SugaredLogger
	now           func() time.Time
	submitTimeout time.Duration

	started   bool
	finalized bool
}

// NewController wires a session to its configuration, view and recorder
func NewController(cfg *Configuration, session *Session, view View, recorder Recorder, opts Options) *Controller {
	c := &Controller{
		cfg:           cfg,
		session:       session,
		view:          view,
		recorder:      recorder,
		rng:           opts.Rand,
		log:           opts.Logger,
		now:           opts.Now,
		submitTimeout: opts.SubmitTimeout,
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	if c.log == nil {
		c.log = zap.NewNop().Sugar()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.submitTimeout <= 0 {
		c.submitTimeout = defaultSubmitTimeout
	}
	if session.Answers == nil {
		session.Answers = make(map[string]string)
	}
	return c
}

func (c *Controller) Session() *Session {
	return c.session
}

func (c *Controller) Config() *Configuration {
	return c.cfg
}

// Start records the session metadata and shows the first screen
func (c *Controller) Start(ctx context.Context) error {
	if c.started {
		return fmt.Errorf("start: %w", ErrUnexpectedEvent)
	}
	c.started = true

	c.recordMeta(ctx, "condition", c.cfg.Condition.Key())
	c.recordMeta(ctx, "counterbalance", strconv.Itoa(c.cfg.Counterbalance))
	if c.cfg.Variant.RecordQuestionIndex {
		c.recordMeta(ctx, "question_index", c.cfg.QuestionIndex)
	}

	c.log.Infow("session started",
		"session", c.session.ID,
		"chat", c.session.ChatID,
		"experiment", c.cfg.Variant.Name,
		"condition", c.cfg.Condition.String(),
		"counterbalance", c.cfg.Counterbalance,
	)

	if c.cfg.Variant.BotCheck {
		return c.enter(ctx, PhaseBotCheck)
	}
	return c.enter(ctx, PhaseInstructions)
}

// Handle applies one participant event to the current phase
func (c *Controller) Handle(ctx context.Context, ev Event) error {
	if !c.started {
		return fmt.Errorf("session not started: %w", ErrUnexpectedEvent)
	}

	switch c.session.Phase {
	case PhaseBotCheck:
		return c.handleBotCheck(ctx, ev)
	case PhaseInstructions:
		if e, ok := ev.(Continue); ok {
			if err := c.checkContinue(e); err != nil {
				return err
			}
			return c.enter(ctx, PhaseIntroduction)
		}
	case PhaseIntroduction:
		if e, ok := ev.(Continue); ok {
			if err := c.checkContinue(e); err != nil {
				return err
			}
			c.session.Index++
			return c.activateSlide(ctx)
		}
	case PhaseComprehension:
		switch e := ev.(type) {
		case CheckAnswer:
			return c.answerCheck(e)
		case SubmitChecks:
			if len(c.session.Answers) < len(c.cfg.Checks) {
				return ErrIncompleteAnswers
			}
			return c.finish(ctx, PhaseComprehension)
		}
	case PhaseTrial:
		if e, ok := ev.(TrialResponse); ok {
			return c.recordResponse(ctx, e)
		}
	case PhaseDemographics:
		if e, ok := ev.(Demographics); ok {
			return c.recordDemographics(ctx, e)
		}
	case PhaseSubmit:
		if _, ok := ev.(RetrySubmit); ok && c.session.SubmitFailed {
			return c.submit(ctx)
		}
	}
	return fmt.Errorf("%T in %s: %w", ev, c.session.Phase, ErrUnexpectedEvent)
}

// checkContinue rejects a Continue pressed on a screen that is no longer shown
func (c *Controller) checkContinue(e Continue) error {
	if e.Phase != c.session.Phase || e.Index != c.session.Index {
		return fmt.Errorf("stale continue for %s %d (current %s %d): %w",
			e.Phase, e.Index, c.session.Phase, c.session.Index, ErrInvalidResponse)
	}
	return nil
}

// enter switches to next and runs its entry action.
// The index is reset only when the phase actually changes.
func (c *Controller) enter(ctx context.Context, next Phase) error {
	prev := c.session.Phase
	if prev != next {
		c.session.Index = 0
	}
	c.session.Phase = next
	c.log.Debugw("phase transition", "session", c.session.ID, "from", prev.String(), "to", next.String())

	switch next {
	case PhaseBotCheck:
		c.session.Challenge = c.rng.IntN(len(c.cfg.BotChallenges)) + 1
		c.session.BotCheckStage = BotCheckChallenge
		c.view.ShowBotCheck(c.session, c.session.Challenge)
	case PhaseInstructions:
		c.view.ShowInstructions(c.session, c.cfg.Instructions)
	case PhaseIntroduction:
		return c.activateSlide(ctx)
	case PhaseComprehension:
		c.session.Answers = make(map[string]string)
		c.view.ShowComprehension(c.session, c.cfg.Checks)
	case PhaseTrial:
		return c.activateTrial(ctx)
	case PhaseDemographics:
		c.view.ShowDemographics(c.session)
	case PhaseSubmit:
		return c.submit(ctx)
	}
	return nil
}

// finish leaves from. Calling it again once the phase has been left does nothing.
func (c *Controller) finish(ctx context.Context, from Phase) error {
	if c.session.Phase != from {
		return nil
	}

	switch from {
	case PhaseIntroduction:
		return c.enter(ctx, PhaseComprehension)
	case PhaseComprehension:
		if err := c.checkAnswers(); err != nil {
			c.log.Infow("comprehension check failed", "session", c.session.ID, "error", err)
			c.session.Answers = make(map[string]string)
			c.session.Index = 0
			c.view.ShowComprehensionFailed(c.session)
			return c.enter(ctx, PhaseInstructions)
		}
		return c.enter(ctx, PhaseTrial)
	case PhaseTrial:
		return c.enter(ctx, PhaseDemographics)
	case PhaseDemographics:
		return c.enter(ctx, PhaseSubmit)
	}
	return nil
}

func (c *Controller) slideAt(i int) (models.Slide, error) {
	if i < 0 || i >= len(c.cfg.Slides) {
		return models.Slide{}, fmt.Errorf("slide %d of %d: %w", i, len(c.cfg.Slides), ErrOutOfRange)
	}
	return c.cfg.Slides[i], nil
}

func (c *Controller) activateSlide(ctx context.Context) error {
	slide, err := c.slideAt(c.session.Index)
	if errors.Is(err, ErrOutOfRange) {
		return c.finish(ctx, PhaseIntroduction)
	}

	sv := SlideView{
		Index: c.session.Index,
		Total: len(c.cfg.Slides),
		Slide: slide,
	}
	// Slides after the first carry the introduction clips, one each.
	if i := c.session.Index; i >= 1 && i <= len(c.cfg.IntroVideos) {
		video := c.cfg.IntroVideos[i-1]
		sv.Video = &video
	}
	c.view.ShowSlide(c.session, sv)
	return nil
}

func (c *Controller) answerCheck(e CheckAnswer) error {
	q, ok := c.cfg.Check(e.QuestionID)
	if !ok {
		return fmt.Errorf("unknown question %q: %w", e.QuestionID, ErrInvalidResponse)
	}
	if !q.HasOption(e.Value) {
		return fmt.Errorf("question %q has no option %q: %w", e.QuestionID, e.Value, ErrInvalidResponse)
	}
	c.session.Answers[e.QuestionID] = e.Value
	return nil
}

func (c *Controller) checkAnswers() error {
	key := c.cfg.Variant.Key
	for _, id := range key.IDs() {
		if c.session.Answers[id] != key[id] {
			return fmt.Errorf("%w: question %s", ErrComprehensionMismatch, id)
		}
	}
	return nil
}

func (c *Controller) activateTrial(ctx context.Context) error {
	stim, err := c.cfg.Trials.At(c.session.Index)
	if errors.Is(err, ErrOutOfRange) {
		c.session.Presentation = nil
		return c.finish(ctx, PhaseTrial)
	}

	p := Presentation{
		Index:    c.session.Index,
		Total:    c.cfg.Trials.Len(),
		Stimulus: stim,
		Question: c.cfg.Question,
		Scale:    c.cfg.Variant.Scale,
	}
	if c.cfg.Variant.Shape == TrialPaired {
		p.Videos, p.Order = Arrange(stim.Pair, c.rng)
	} else {
		p.Videos = []string{stim.Name}
	}
	c.session.Presentation = &p
	c.view.ShowTrial(c.session, p)
	return nil
}

func (c *Controller) validateResponse(value string) (string, error) {
	value = strings.TrimSpace(value)
	if c.cfg.Variant.Shape == TrialPaired {
		for _, l := range c.cfg.Question.Labels {
			if l == value {
				return value, nil
			}
		}
		return "", fmt.Errorf("choice %q: %w", value, ErrInvalidResponse)
	}

	n, err := strconv.Atoi(value)
	if err != nil || !c.cfg.Variant.Scale.Contains(n) {
		return "", fmt.Errorf("rating %q: %w", value, ErrInvalidResponse)
	}
	return strconv.Itoa(n), nil
}

func (c *Controller) recordResponse(ctx context.Context, e TrialResponse) error {
	p := c.session.Presentation
	if p == nil || e.TrialIndex != c.session.Index {
		return fmt.Errorf("stale response for trial %d (current %d): %w", e.TrialIndex, c.session.Index, ErrInvalidResponse)
	}
	value, err := c.validateResponse(e.Value)
	if err != nil {
		return err
	}

	rec := models.ResponseRecord{
		SessionID:         c.session.ID,
		TrialIndex:        p.Index,
		StimulusRef:       p.Stimulus.Ref(),
		PresentationOrder: p.Order,
		Condition:         c.cfg.Condition,
		Response:          value,
		RecordedAt:        c.now().UTC(),
	}
	if err := c.recorder.Record(ctx, rec); err != nil {
		c.log.Warnw("failed to record trial", "session", c.session.ID, "trial", p.Index, "error", err)
	}

	c.session.Presentation = nil
	c.session.Index++
	return c.activateTrial(ctx)
}

func (c *Controller) recordDemographics(ctx context.Context, e Demographics) error {
	sex := strings.TrimSpace(e.Sex)
	if sex == "" {
		return fmt.Errorf("sex is required: %w", ErrInvalidResponse)
	}
	if e.Age <= 0 {
		return fmt.Errorf("age is required: %w", ErrInvalidResponse)
	}
	age := min(e.Age, maxAge)

	c.recordMeta(ctx, "feedback", strings.TrimSpace(e.Feedback))
	c.recordMeta(ctx, "sex", sex)
	c.recordMeta(ctx, "age", strconv.Itoa(age))
	return c.finish(ctx, PhaseDemographics)
}

func (c *Controller) handleBotCheck(ctx context.Context, ev Event) error {
	switch c.session.BotCheckStage {
	case BotCheckChallenge:
		e, ok := ev.(BotCheckAnswer)
		if !ok {
			break
		}
		resp := strings.ToLower(strings.TrimSpace(e.Text))
		if resp == "" {
			return fmt.Errorf("empty answer: %w", ErrInvalidResponse)
		}
		c.session.BotCheckResponses = append(c.session.BotCheckResponses, resp)

		if resp != c.cfg.BotChallenges[c.session.Challenge-1] {
			c.session.BotCheckStage = BotCheckFailed
			c.view.ShowBotCheckResult(c.session, false)
			return nil
		}
		responses, err := json.Marshal(c.session.BotCheckResponses)
		if err != nil {
			return fmt.Errorf("encode bot check responses: %w", err)
		}
		c.recordMeta(ctx, "botcheck_responses", string(responses))
		c.session.BotCheckStage = BotCheckPassed
		c.view.ShowBotCheckResult(c.session, true)
		return nil
	case BotCheckPassed:
		if e, ok := ev.(Continue); ok {
			if err := c.checkContinue(e); err != nil {
				return err
			}
			return c.enter(ctx, PhaseInstructions)
		}
	case BotCheckFailed:
		if e, ok := ev.(Continue); ok {
			if err := c.checkContinue(e); err != nil {
				return err
			}
			return c.enter(ctx, PhaseBotCheck)
		}
	}
	return fmt.Errorf("%T in bot check: %w", ev, ErrUnexpectedEvent)
}

// submit flushes and finalizes the session under one bounded wait. On failure
// the participant is asked to retry; there is no other way to complete.
func (c *Controller) submit(ctx context.Context) error {
	c.view.ShowSubmitting(c.session)

	sctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	if err := c.recorder.PersistSession(sctx, c.session.ID); err != nil {
		return c.submitFailed(err)
	}

	if c.finalized {
		return nil
	}
	code, err := c.recorder.Finalize(sctx, c.session.ID)
	if err != nil {
		return c.submitFailed(err)
	}
	c.finalized = true
	c.session.SubmitFailed = false
	c.session.CompletionCode = code
	c.session.Phase = PhaseComplete

	c.log.Infow("session complete", "session", c.session.ID, "code", code)
	c.view.ShowComplete(c.session, code)
	return nil
}

func (c *Controller) submitFailed(err error) error {
	c.session.SubmitFailed = true
	err = fmt.Errorf("%w: %w", ErrPersistence, err)
	c.log.Warnw("submission failed", "session", c.session.ID, "error", err)
	c.view.ShowSubmitFailed(c.session)
	return err
}

func (c *Controller) recordMeta(ctx context.Context, key, value string) {
	if err := c.recorder.RecordUnstructured(ctx, c.session.ID, key, value); err != nil {
		c.log.Warnw("failed to record session data", "session", c.session.ID, "key", key, "error", err)
	}
}
