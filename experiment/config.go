package experiment

import (
	"fmt"
	"math/rand/v2"

	"github.com/korjavin/studybot/models"
	"github.com/korjavin/studybot/stimuli"
)

// Configuration is the immutable per-session view of the stimulus document
type Configuration struct {
	Variant        *Variant
	Condition      models.Condition
	Counterbalance int

	Instructions  string
	Slides        []models.Slide
	IntroVideos   []models.Slide
	Trials        *TrialSet
	Question      models.QuestionText
	Checks        []models.CheckQuestion
	QuestionIndex string
	BotChallenges []string
	Text          map[string]string
}

// NewConfiguration selects the content for condition and shuffles the trials once.
// doc must already be validated for v.
func NewConfiguration(doc *stimuli.Document, v *Variant, condition models.Condition, counterbalance int, rng *rand.Rand) (*Configuration, error) {
	if !v.Runs(condition) {
		return nil, fmt.Errorf("%s does not run condition %s", v.Name, condition)
	}
	key := condition.Key()

	cfg := &Configuration{
		Variant:        v,
		Condition:      condition,
		Counterbalance: counterbalance,
		Slides:         append([]models.Slide(nil), doc.Intro...),
		IntroVideos:    append([]models.Slide(nil), doc.Videos...),
		Trials:         NewTrialSet(doc.Stim, rng),
		Question:       doc.Questions[key],
		QuestionIndex:  doc.QuestionIndex[key],
		Text:           doc.Text,
		BotChallenges:  doc.BotCheck,
	}
	if len(cfg.BotChallenges) == 0 {
		cfg.BotChallenges = DefaultBotChallenges
	}

	if v.ConditionalInstructions {
		cfg.Instructions = doc.Instructions[key].Text
	} else {
		cfg.Instructions = doc.Text["instructions"]
	}

	for _, q := range doc.Checks {
		if _, used := v.Key[q.ID]; !used {
			continue
		}
		q.Options = append([]models.CheckOption(nil), q.Options...)
		if q.ID == v.ConditionalCheck {
			for i := range q.Options {
				if q.Options[i].Value == v.Key[q.ID] {
					q.Options[i].Text = doc.QuestionCheck[key].Question
				}
			}
		}
		cfg.Checks = append(cfg.Checks, q)
	}
	return cfg, nil
}

// Check returns the session's comprehension question with the given id
func (c *Configuration) Check(id string) (models.CheckQuestion, bool) {
	for _, q := range c.Checks {
		if q.ID == id {
			return q, true
		}
	}
	return models.CheckQuestion{}, false
}
