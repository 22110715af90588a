package models

import "strings"

// Stimulus describes one trial item from the stimulus document.
// Single-video variants use Name, paired variants use Pair.
type Stimulus struct {
	Name string   `json:"name,omitempty" yaml:"name,omitempty"`
	Pair []string `json:"pair,omitempty" yaml:"pair,omitempty"`
}

// Ref is the identifier stored with a trial record
func (s Stimulus) Ref() string {
	if len(s.Pair) > 0 {
		return strings.Join(s.Pair, ",")
	}
	return s.Name
}

// Slide is an introduction slide or introduction video
type Slide struct {
	Name string `json:"name" yaml:"name"`
}

// QuestionText is the rating question shown with every trial and its scale labels
type QuestionText struct {
	Question string   `json:"q" yaml:"q"`
	Labels   []string `json:"l" yaml:"l"`
}

// CheckOption is one categorical answer of a comprehension question
type CheckOption struct {
	Value string `json:"value" yaml:"value"`
	Text  string `json:"text" yaml:"text"`
}

// CheckQuestion is a comprehension question
type CheckQuestion struct {
	ID      string        `json:"id" yaml:"id"`
	Prompt  string        `json:"prompt" yaml:"prompt"`
	Options []CheckOption `json:"options" yaml:"options"`
}

// HasOption reports whether value is one of the question's answers
func (q CheckQuestion) HasOption(value string) bool {
	for _, o := range q.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}
