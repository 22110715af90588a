package experiment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/korjavin/studybot/models"
	"github.com/stretchr/testify/require"
)

var (
	correctExp1 = map[string]string{"q1": "A", "q2": "B", "q3": "B"}
	correctExp2 = map[string]string{"q1": "A", "q2": "B", "q3": "B", "q4": "B"}
	correctExp3 = map[string]string{"q1": "A", "q3": "B", "q4": "B", "q5": "B"}
)

func TestEndToEndScenario(t *testing.T) {
	c, view, rec := newTestController(t, testDocument(), Experiment2, models.ConditionCausality)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	require.Equal(t, PhaseInstructions, c.Session().Phase)
	require.Equal(t, []string{"Judge the causality"}, view.instructions)

	runIntroduction(t, c)
	require.Len(t, view.slides, 2, "one activation per introduction slide")
	require.Equal(t, PhaseComprehension, c.Session().Phase)

	answerAll(t, c, correctExp2)
	require.Equal(t, PhaseTrial, c.Session().Phase)

	for i := 0; i < 3; i++ {
		require.Equal(t, i, c.Session().Index)
		mustHandle(t, c, TrialResponse{TrialIndex: i, Value: "70"})
	}
	require.Equal(t, PhaseDemographics, c.Session().Phase)
	require.Equal(t, 0, c.Session().Index)

	require.Len(t, rec.records, 3)
	seen := map[string]bool{}
	for i, r := range rec.records {
		require.Equal(t, i, r.TrialIndex)
		require.Equal(t, "70", r.Response)
		require.Equal(t, models.ConditionCausality, r.Condition)
		require.Empty(t, r.PresentationOrder)
		seen[r.StimulusRef] = true
	}
	require.Len(t, seen, 3, "every stimulus shown once")

	mustHandle(t, c, Demographics{Sex: "female", Age: 34, Feedback: "fine"})
	require.Equal(t, PhaseComplete, c.Session().Phase)
	require.Equal(t, 1, rec.persisted)
	require.Equal(t, 1, rec.finalized)
	require.Equal(t, []string{"CODE1234"}, view.complete)
	require.Equal(t, "CODE1234", c.Session().CompletionCode)

	want := map[string]string{
		"condition":      "1",
		"counterbalance": "1",
		"feedback":       "fine",
		"sex":            "female",
		"age":            "34",
	}
	if diff := cmp.Diff(want, rec.meta); diff != "" {
		t.Fatalf("session data mismatch (-want +got):\n%s", diff)
	}

	err := c.Handle(ctx, RetrySubmit{})
	require.ErrorIs(t, err, ErrUnexpectedEvent)
	require.Equal(t, 1, rec.finalized)
}

func TestActivationCountMatchesSequence(t *testing.T) {
	for _, n := range []int{0, 1, 4, 9} {
		doc := testDocument()
		doc.Stim = nil
		for i := 0; i < n; i++ {
			doc.Stim = append(doc.Stim, models.Stimulus{Name: "clip" + string(rune('a'+i))})
		}
		if n == 0 {
			doc.Stim = []models.Stimulus{{Name: "placeholder"}}
		}
		cfg, err := NewConfiguration(doc, Experiment2, models.ConditionEffort, 0, testRand())
		require.NoError(t, err)
		if n == 0 {
			cfg.Trials = NewTrialSet(nil, testRand())
		}

		view := &fakeView{}
		c := NewController(cfg, NewSession(1), view, newFakeRecorder(), Options{Rand: testRand()})
		require.NoError(t, c.Start(context.Background()))
		runIntroduction(t, c)
		answerAll(t, c, correctExp2)

		for c.Session().Phase == PhaseTrial {
			require.LessOrEqual(t, c.Session().Index, n)
			mustHandle(t, c, TrialResponse{TrialIndex: c.Session().Index, Value: "0"})
		}
		require.Len(t, view.trials, n)
		require.Equal(t, PhaseDemographics, c.Session().Phase)
	}
}

func TestIntroductionVideosFollowFirstSlide(t *testing.T) {
	doc := testDocument()
	doc.Intro = []models.Slide{{Name: "s1"}, {Name: "s2"}, {Name: "s3"}, {Name: "s4"}, {Name: "s5"}}
	doc.Videos = []models.Slide{{Name: "v1"}, {Name: "v2"}, {Name: "v3"}}
	c, view, _ := newTestController(t, doc, Experiment2, models.ConditionEffort)

	require.NoError(t, c.Start(context.Background()))
	runIntroduction(t, c)

	require.Len(t, view.slides, 5)
	var videos []string
	for _, s := range view.slides {
		if s.Video == nil {
			videos = append(videos, "")
			continue
		}
		videos = append(videos, s.Video.Name)
	}
	require.Equal(t, []string{"", "v1", "v2", "v3", ""}, videos)
	for i, s := range view.slides {
		require.Equal(t, i, s.Index)
		require.Equal(t, 5, s.Total)
	}
}

func TestRepeatedContinueDoesNotSkipSlides(t *testing.T) {
	c, view, _ := newTestController(t, testDocument(), Experiment2, models.ConditionEffort)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	instructions := c.Session().ContinueEvent()
	mustHandle(t, c, instructions)
	require.ErrorIs(t, c.Handle(ctx, instructions), ErrInvalidResponse)
	require.Equal(t, PhaseIntroduction, c.Session().Phase)
	require.Equal(t, 0, c.Session().Index)

	first := c.Session().ContinueEvent()
	mustHandle(t, c, first)
	require.ErrorIs(t, c.Handle(ctx, first), ErrInvalidResponse)
	require.Equal(t, 1, c.Session().Index)
	require.Len(t, view.slides, 2)
}

func TestComprehensionGate(t *testing.T) {
	tests := []struct {
		name    string
		answers map[string]string
		want    Phase
	}{
		{name: "all correct", answers: correctExp2, want: PhaseTrial},
		{name: "first wrong", answers: map[string]string{"q1": "B", "q2": "B", "q3": "B", "q4": "B"}, want: PhaseInstructions},
		{name: "last wrong", answers: map[string]string{"q1": "A", "q2": "B", "q3": "B", "q4": "C"}, want: PhaseInstructions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, view, rec := newTestController(t, testDocument(), Experiment2, models.ConditionMorality)
			require.NoError(t, c.Start(context.Background()))
			runIntroduction(t, c)

			answerAll(t, c, tt.answers)
			require.Equal(t, tt.want, c.Session().Phase)
			require.Empty(t, rec.records)
			if tt.want == PhaseInstructions {
				require.Equal(t, 0, c.Session().Index)
				require.Empty(t, c.Session().Answers)
				require.Equal(t, 1, view.failedChecks)
				require.Len(t, view.instructions, 2)
			}
		})
	}
}

func TestComprehensionRetryRestartsOrientation(t *testing.T) {
	c, view, _ := newTestController(t, testDocument(), Experiment2, models.ConditionEffort)
	require.NoError(t, c.Start(context.Background()))

	for attempt := 0; attempt < 3; attempt++ {
		runIntroduction(t, c)
		answerAll(t, c, map[string]string{"q1": "C", "q2": "B", "q3": "B", "q4": "B"})
		require.Equal(t, PhaseInstructions, c.Session().Phase)
	}
	runIntroduction(t, c)
	answerAll(t, c, correctExp2)

	require.Equal(t, PhaseTrial, c.Session().Phase)
	require.Equal(t, 3, view.failedChecks)
	require.Len(t, view.slides, 8, "slides replayed after each failure")
}

func TestComprehensionValidation(t *testing.T) {
	c, _, _ := newTestController(t, pairedDocument(), Experiment1, models.ConditionMorality)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	runIntroduction(t, c)

	require.ErrorIs(t, c.Handle(ctx, SubmitChecks{}), ErrIncompleteAnswers)
	require.ErrorIs(t, c.Handle(ctx, CheckAnswer{QuestionID: "q4", Value: "A"}), ErrInvalidResponse, "q4 is not part of experiment 1")
	require.ErrorIs(t, c.Handle(ctx, CheckAnswer{QuestionID: "q1", Value: "Z"}), ErrInvalidResponse)

	mustHandle(t, c, CheckAnswer{QuestionID: "q1", Value: "A"})
	require.ErrorIs(t, c.Handle(ctx, SubmitChecks{}), ErrIncompleteAnswers)
	require.Equal(t, PhaseComprehension, c.Session().Phase)
}

func TestConditionalCheckText(t *testing.T) {
	c, view, _ := newTestController(t, testDocument(), Experiment2, models.ConditionMorality)
	require.NoError(t, c.Start(context.Background()))
	runIntroduction(t, c)

	require.Len(t, view.checks, 1)
	var q4 models.CheckQuestion
	for _, q := range view.checks[0] {
		if q.ID == "q4" {
			q4 = q
		}
	}
	require.Equal(t, "To judge morality", q4.Options[1].Text)
	require.Equal(t, "first", q4.Options[0].Text)
}

func TestPairedTrialRecordsDisplayOrder(t *testing.T) {
	c, view, rec := newTestController(t, pairedDocument(), Experiment1, models.ConditionMorality)
	require.NoError(t, c.Start(context.Background()))
	runIntroduction(t, c)
	answerAll(t, c, correctExp1)

	labels := c.Config().Question.Labels
	for c.Session().Phase == PhaseTrial {
		mustHandle(t, c, TrialResponse{TrialIndex: c.Session().Index, Value: labels[0]})
	}

	require.Len(t, rec.records, 2)
	for i, r := range rec.records {
		p := view.trials[i]
		require.Len(t, p.Videos, 2)
		require.Equal(t, p.Order, r.PresentationOrder)
		require.Equal(t, p.Stimulus.Ref(), r.StimulusRef)
		switch r.PresentationOrder {
		case models.OrderNotFlipped:
			require.Equal(t, p.Stimulus.Pair, p.Videos)
		case models.OrderFlipped:
			require.Equal(t, []string{p.Stimulus.Pair[1], p.Stimulus.Pair[0]}, p.Videos)
		default:
			t.Fatalf("unexpected order %q", r.PresentationOrder)
		}
	}
}

func TestTrialResponseValidation(t *testing.T) {
	c, _, rec := newTestController(t, testDocument(), Experiment2, models.ConditionEffort)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	runIntroduction(t, c)
	answerAll(t, c, correctExp2)

	require.ErrorIs(t, c.Handle(ctx, TrialResponse{TrialIndex: 0, Value: "55"}), ErrInvalidResponse)
	require.ErrorIs(t, c.Handle(ctx, TrialResponse{TrialIndex: 0, Value: "abc"}), ErrInvalidResponse)
	require.ErrorIs(t, c.Handle(ctx, TrialResponse{TrialIndex: 0, Value: "110"}), ErrInvalidResponse)
	require.ErrorIs(t, c.Handle(ctx, TrialResponse{TrialIndex: 1, Value: "50"}), ErrInvalidResponse)

	mustHandle(t, c, TrialResponse{TrialIndex: 0, Value: "50"})
	require.ErrorIs(t, c.Handle(ctx, TrialResponse{TrialIndex: 0, Value: "50"}), ErrInvalidResponse, "double press")
	require.Len(t, rec.records, 1)
}

func TestFinishIsIdempotent(t *testing.T) {
	c, view, rec := newTestController(t, testDocument(), Experiment2, models.ConditionEffort)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	runIntroduction(t, c)
	answerAll(t, c, correctExp2)

	require.NoError(t, c.finish(ctx, PhaseTrial))
	require.NoError(t, c.finish(ctx, PhaseTrial))
	require.Equal(t, PhaseDemographics, c.Session().Phase)
	require.Equal(t, 1, view.demographics)

	require.NoError(t, c.finish(ctx, PhaseDemographics))
	require.NoError(t, c.finish(ctx, PhaseDemographics))
	require.Equal(t, PhaseComplete, c.Session().Phase)
	require.Equal(t, 1, rec.persisted)
	require.Equal(t, 1, rec.finalized)
	require.Equal(t, 1, view.submitting)
}

func TestSubmitRetriesUntilPersisted(t *testing.T) {
	c, view, rec := newTestController(t, testDocument(), Experiment2, models.ConditionEffort)
	ctx := context.Background()
	rec.persistErrs = []error{errors.New("disk full"), context.DeadlineExceeded}

	require.NoError(t, c.Start(ctx))
	runIntroduction(t, c)
	answerAll(t, c, correctExp2)
	for c.Session().Phase == PhaseTrial {
		mustHandle(t, c, TrialResponse{TrialIndex: c.Session().Index, Value: "10"})
	}

	err := c.Handle(ctx, Demographics{Sex: "male", Age: 29})
	require.ErrorIs(t, err, ErrPersistence)
	require.Equal(t, PhaseSubmit, c.Session().Phase)
	require.True(t, c.Session().SubmitFailed)

	err = c.Handle(ctx, RetrySubmit{})
	require.ErrorIs(t, err, ErrPersistence)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 2, view.submitFailed)
	require.Zero(t, rec.finalized)

	mustHandle(t, c, RetrySubmit{})
	require.Equal(t, PhaseComplete, c.Session().Phase)
	require.False(t, c.Session().SubmitFailed)
	require.Equal(t, 1, rec.finalized)
}

func TestSubmitFinalizeBoundedByTimeout(t *testing.T) {
	c, view, rec := newTestController(t, testDocument(), Experiment2, models.ConditionEffort)
	c.submitTimeout = 50 * time.Millisecond
	rec.finalizeHangs = true
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	runIntroduction(t, c)
	answerAll(t, c, correctExp2)
	for c.Session().Phase == PhaseTrial {
		mustHandle(t, c, TrialResponse{TrialIndex: c.Session().Index, Value: "10"})
	}

	start := time.Now()
	err := c.Handle(ctx, Demographics{Sex: "female", Age: 41})
	require.Less(t, time.Since(start), time.Second)
	require.ErrorIs(t, err, ErrPersistence)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, PhaseSubmit, c.Session().Phase)
	require.True(t, c.Session().SubmitFailed)
	require.Equal(t, 1, view.submitFailed)
	require.Zero(t, rec.finalized)
}

func TestRetrySubmitOnlyAfterFailure(t *testing.T) {
	c, _, _ := newTestController(t, testDocument(), Experiment2, models.ConditionEffort)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	require.ErrorIs(t, c.Handle(ctx, RetrySubmit{}), ErrUnexpectedEvent)
	require.ErrorIs(t, c.Handle(ctx, TrialResponse{}), ErrUnexpectedEvent)
	require.ErrorIs(t, c.Start(ctx), ErrUnexpectedEvent)
}

func TestDemographicsValidation(t *testing.T) {
	c, _, rec := newTestController(t, testDocument(), Experiment2, models.ConditionEffort)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	runIntroduction(t, c)
	answerAll(t, c, correctExp2)
	for c.Session().Phase == PhaseTrial {
		mustHandle(t, c, TrialResponse{TrialIndex: c.Session().Index, Value: "100"})
	}

	require.ErrorIs(t, c.Handle(ctx, Demographics{Age: 20}), ErrInvalidResponse)
	require.ErrorIs(t, c.Handle(ctx, Demographics{Sex: "female"}), ErrInvalidResponse)
	require.Equal(t, PhaseDemographics, c.Session().Phase)

	mustHandle(t, c, Demographics{Sex: "female", Age: 250})
	require.Equal(t, "100", rec.meta["age"])
	require.Equal(t, "", rec.meta["feedback"])
}

func TestBotCheckFlow(t *testing.T) {
	c, view, rec := newTestController(t, testDocument(), Experiment3, models.ConditionBadness)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	require.Equal(t, PhaseBotCheck, c.Session().Phase)
	require.Equal(t, "idx-3", rec.meta["question_index"])

	require.ErrorIs(t, c.Handle(ctx, Continue{}), ErrUnexpectedEvent)
	require.ErrorIs(t, c.Handle(ctx, BotCheckAnswer{Text: "   "}), ErrInvalidResponse)

	mustHandle(t, c, BotCheckAnswer{Text: "definitely wrong"})
	require.Equal(t, []bool{false}, view.botResults)
	require.ErrorIs(t, c.Handle(ctx, BotCheckAnswer{Text: "again"}), ErrUnexpectedEvent)

	mustHandle(t, c, c.Session().ContinueEvent())
	require.Len(t, view.challenges, 2, "a new challenge after failing")

	expected := DefaultBotChallenges[c.Session().Challenge-1]
	mustHandle(t, c, BotCheckAnswer{Text: "  " + expected + "\n"})
	require.Equal(t, []bool{false, true}, view.botResults)
	require.Equal(t, `["definitely wrong","`+expected+`"]`, rec.meta["botcheck_responses"])

	passed := c.Session().ContinueEvent()
	mustHandle(t, c, passed)
	require.Equal(t, PhaseInstructions, c.Session().Phase)
	require.Equal(t, []string{"Judge the badness"}, view.instructions)
	require.ErrorIs(t, c.Handle(ctx, passed), ErrInvalidResponse)
	require.Equal(t, PhaseInstructions, c.Session().Phase)

	runIntroduction(t, c)
	answerAll(t, c, correctExp3)
	require.Equal(t, PhaseTrial, c.Session().Phase)
}

func TestHandleBeforeStart(t *testing.T) {
	c, _, _ := newTestController(t, testDocument(), Experiment2, models.ConditionEffort)
	require.ErrorIs(t, c.Handle(context.Background(), Continue{}), ErrUnexpectedEvent)
}
