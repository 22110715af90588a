package experiment

import (
	"fmt"
	"math/rand/v2"

	"github.com/korjavin/studybot/models"
)

// Shuffle permutes items in place (Fisher-Yates)
func Shuffle[T any](items []T, rng *rand.Rand) {
	for i := len(items) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}

// Arrange decides the display positions of a stimulus pair with a fair coin flip.
// It returns the pair in display order and the presentation order label.
func Arrange(pair []string, rng *rand.Rand) ([]string, string) {
	if len(pair) != 2 {
		return append([]string(nil), pair...), ""
	}
	if rng.Float64() > 0.5 {
		return []string{pair[0], pair[1]}, models.OrderNotFlipped
	}
	return []string{pair[1], pair[0]}, models.OrderFlipped
}

// TrialSet is the session's stimulus sequence. Its order is fixed once built.
type TrialSet struct {
	items []models.Stimulus
}

// NewTrialSet copies items and shuffles the copy
func NewTrialSet(items []models.Stimulus, rng *rand.Rand) *TrialSet {
	shuffled := append([]models.Stimulus(nil), items...)
	Shuffle(shuffled, rng)
	return &TrialSet{items: shuffled}
}

func (t *TrialSet) Len() int {
	return len(t.items)
}

// At returns the stimulus at index i or ErrOutOfRange
func (t *TrialSet) At(i int) (models.Stimulus, error) {
	if i < 0 || i >= len(t.items) {
		return models.Stimulus{}, fmt.Errorf("trial %d of %d: %w", i, len(t.items), ErrOutOfRange)
	}
	return t.items[i], nil
}

// Items returns a copy of the sequence
func (t *TrialSet) Items() []models.Stimulus {
	return append([]models.Stimulus(nil), t.items...)
}
