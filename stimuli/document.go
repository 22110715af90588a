package stimuli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/korjavin/studybot/models"
	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"
)

// InstructionText holds condition-specific instructions
type InstructionText struct {
	Text string `json:"s" yaml:"s"`
}

// CheckText holds the condition-specific answer of the task comprehension question
type CheckText struct {
	Question string `json:"q" yaml:"q"`
}

// Document is the stimulus document served to every session of an experiment
type Document struct {
	Stim          []models.Stimulus              `json:"stim" yaml:"stim"`
	Videos        []models.Slide                 `json:"vid" yaml:"vid"`
	Intro         []models.Slide                 `json:"intro" yaml:"intro"`
	Text          map[string]string              `json:"text" yaml:"text"`
	Questions     map[string]models.QuestionText `json:"questions" yaml:"questions"`
	Instructions  map[string]InstructionText     `json:"instructions" yaml:"instructions"`
	QuestionCheck map[string]CheckText           `json:"question_check" yaml:"question_check"`
	QuestionIndex map[string]string              `json:"question_index" yaml:"question_index"`
	Checks        []models.CheckQuestion         `json:"checks" yaml:"checks"`
	BotCheck      []string                       `json:"bot_check" yaml:"bot_check"`
}

// Load reads the document at path and merges <name>.local.<ext> over it when present.
// JSON5 and YAML files are accepted.
func Load(path string) (*Document, error) {
	doc, err := readFile(path)
	if err != nil {
		return nil, err
	}

	local := LocalPath(path)
	override, err := readFile(local)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := mergo.Merge(doc, override, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge %s: %w", local, err)
		}
	}

	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// LocalPath returns the override file that sits next to path
func LocalPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".local" + ext
}

func readFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json5.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &doc, nil
}

// Validate checks the parts of the document every experiment relies on
func (d *Document) Validate() error {
	if len(d.Stim) == 0 {
		return errors.New("document has no stimuli")
	}
	for i, s := range d.Stim {
		if s.Name == "" && len(s.Pair) == 0 {
			return fmt.Errorf("stimulus %d has neither name nor pair", i)
		}
	}
	for i, s := range d.Intro {
		if s.Name == "" {
			return fmt.Errorf("intro slide %d has no name", i)
		}
	}
	for i, v := range d.Videos {
		if v.Name == "" {
			return fmt.Errorf("intro video %d has no name", i)
		}
	}
	seen := make(map[string]bool, len(d.Checks))
	for _, q := range d.Checks {
		if q.ID == "" {
			return errors.New("comprehension question without id")
		}
		if seen[q.ID] {
			return fmt.Errorf("duplicate comprehension question %q", q.ID)
		}
		seen[q.ID] = true
	}
	return nil
}

// Check returns the comprehension question with the given id
func (d *Document) Check(id string) (models.CheckQuestion, bool) {
	for _, q := range d.Checks {
		if q.ID == id {
			return q, true
		}
	}
	return models.CheckQuestion{}, false
}
