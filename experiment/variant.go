package experiment

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/korjavin/studybot/models"
	"github.com/korjavin/studybot/stimuli"
)

// TrialShape tells whether a trial shows one clip or a pair of clips
type TrialShape int

const (
	TrialSingle TrialShape = iota
	TrialPaired
)

// ComprehensionKey maps a comprehension question id to its expected answer
type ComprehensionKey map[string]string

// IDs returns the question ids in a stable order
func (k ComprehensionKey) IDs() []string {
	ids := make([]string, 0, len(k))
	for id := range k {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RatingScale is the discrete slider used by single-clip trials
type RatingScale struct {
	Min  int
	Max  int
	Step int
}

// Values lists every selectable point of the scale
func (s RatingScale) Values() []int {
	if s.Step <= 0 {
		return nil
	}
	var out []int
	for v := s.Min; v <= s.Max; v += s.Step {
		out = append(out, v)
	}
	return out
}

func (s RatingScale) Contains(v int) bool {
	if s.Step <= 0 || v < s.Min || v > s.Max {
		return false
	}
	return (v-s.Min)%s.Step == 0
}

// Anchors spreads n label positions evenly from Min to Max, snapped to the
// nearest selectable value.
func (s RatingScale) Anchors(n int) []int {
	if n <= 0 || s.Step <= 0 || s.Max < s.Min {
		return nil
	}
	if n == 1 {
		return []int{s.Min}
	}
	steps := (s.Max - s.Min) / s.Step
	out := make([]int, n)
	for i := range out {
		k := int(math.Round(float64(i*steps) / float64(n-1)))
		out[i] = s.Min + k*s.Step
	}
	return out
}

// DefaultBotChallenges are the expected answers for the six challenge images
var DefaultBotChallenges = []string{"freddie", "gina", "mohammed", "juan", "elise", "kayla"}

// Variant holds everything that differs between experiments
type Variant struct {
	Name  string
	Shape TrialShape
	Key   ComprehensionKey

	// BotCheck puts a captcha-like challenge in front of the instructions.
	BotCheck bool
	// ConditionalInstructions reads instructions from instructions[condition].
	ConditionalInstructions bool
	// ConditionalCheck is the id of the comprehension question whose expected
	// option text comes from question_check[condition]. Empty when unused.
	ConditionalCheck string
	// RecordQuestionIndex stores question_index[condition] as session metadata.
	RecordQuestionIndex bool

	Conditions []models.Condition
	Scale      RatingScale
}

var (
	Experiment1 = &Variant{
		Name:       "experiment_1",
		Shape:      TrialPaired,
		Key:        ComprehensionKey{"q1": "A", "q2": "B", "q3": "B"},
		Conditions: []models.Condition{models.ConditionMorality},
	}

	Experiment2 = &Variant{
		Name:                    "experiment_2",
		Shape:                   TrialSingle,
		Key:                     ComprehensionKey{"q1": "A", "q2": "B", "q3": "B", "q4": "B"},
		ConditionalInstructions: true,
		ConditionalCheck:        "q4",
		Conditions: []models.Condition{
			models.ConditionEffort,
			models.ConditionCausality,
			models.ConditionMorality,
		},
		Scale: RatingScale{Min: 0, Max: 100, Step: 10},
	}

	Experiment3 = &Variant{
		Name:                    "experiment_3",
		Shape:                   TrialSingle,
		Key:                     ComprehensionKey{"q1": "A", "q3": "B", "q4": "B", "q5": "B"},
		BotCheck:                true,
		ConditionalInstructions: true,
		ConditionalCheck:        "q4",
		RecordQuestionIndex:     true,
		Conditions:              []models.Condition{models.ConditionBadness},
		Scale:                   RatingScale{Min: 0, Max: 100, Step: 10},
	}
)

// Variants lists the built-in experiments
func Variants() []*Variant {
	return []*Variant{Experiment1, Experiment2, Experiment3}
}

// VariantByName looks up a built-in experiment
func VariantByName(name string) (*Variant, error) {
	for _, v := range Variants() {
		if v.Name == name {
			return v, nil
		}
	}
	return nil, fmt.Errorf("unknown experiment %q", name)
}

// Runs reports whether the variant may run under condition c
func (v *Variant) Runs(c models.Condition) bool {
	for _, cond := range v.Conditions {
		if cond == c {
			return true
		}
	}
	return false
}

// Validate checks that doc carries everything this variant needs for each of its conditions
func (v *Variant) Validate(doc *stimuli.Document) error {
	if len(v.Conditions) == 0 {
		return fmt.Errorf("%s: no conditions configured", v.Name)
	}

	for i, s := range doc.Stim {
		switch v.Shape {
		case TrialPaired:
			if len(s.Pair) != 2 {
				return fmt.Errorf("stimulus %d: paired trials need exactly two clips, got %d", i, len(s.Pair))
			}
		default:
			if s.Name == "" {
				return fmt.Errorf("stimulus %d: missing clip name", i)
			}
		}
	}

	for _, c := range v.Conditions {
		key := c.Key()
		q, ok := doc.Questions[key]
		if !ok || q.Question == "" {
			return fmt.Errorf("condition %s: missing question text", c)
		}
		if len(q.Labels) < 2 {
			return fmt.Errorf("condition %s: need at least two labels, got %d", c, len(q.Labels))
		}
		if v.ConditionalInstructions && doc.Instructions[key].Text == "" {
			return fmt.Errorf("condition %s: missing instructions", c)
		}
		if v.ConditionalCheck != "" && doc.QuestionCheck[key].Question == "" {
			return fmt.Errorf("condition %s: missing question_check text", c)
		}
		if v.RecordQuestionIndex {
			if _, ok := doc.QuestionIndex[key]; !ok {
				return fmt.Errorf("condition %s: missing question_index", c)
			}
		}
	}

	for _, id := range v.Key.IDs() {
		q, ok := doc.Check(id)
		if !ok {
			return fmt.Errorf("comprehension question %q not in document", id)
		}
		if !q.HasOption(v.Key[id]) {
			return fmt.Errorf("comprehension question %q has no option %q", id, v.Key[id])
		}
	}

	if v.Shape == TrialSingle && len(v.Scale.Values()) == 0 {
		return errors.New("single-clip trials need a rating scale")
	}
	return nil
}

// LoadDocument loads the stimulus document and validates it for v
func LoadDocument(path string, v *Variant) (*stimuli.Document, error) {
	doc, err := stimuli.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigLoad, err)
	}
	if err := v.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigLoad, err)
	}
	return doc, nil
}
