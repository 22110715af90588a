package stimuli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/korjavin/studybot/models"
	"github.com/stretchr/testify/require"
)

const baseDoc = `{
	// clips shown in the test phase
	stim: [{name: "video1"}, {name: "video2"}, {name: "video3"}],
	intro: [{name: "slide1"}, {name: "slide2"}],
	vid: [{name: "intro_clip"}],
	text: {instructions: "Watch the clips."},
	questions: {
		"0": {q: "How much effort?", l: ["none", "some", "a lot"]},
	},
	checks: [
		{id: "q1", prompt: "Who is red?", options: [{value: "A", text: "Fireball"}, {value: "B", text: "Patient"}]},
	],
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadJSON5(t *testing.T) {
	path := writeFile(t, t.TempDir(), "stim.json", baseDoc)

	doc, err := Load(path)
	require.NoError(t, err)
	require.Len(t, doc.Stim, 3)
	require.Equal(t, "Watch the clips.", doc.Text["instructions"])

	want := models.QuestionText{Question: "How much effort?", Labels: []string{"none", "some", "a lot"}}
	if diff := cmp.Diff(want, doc.Questions["0"]); diff != "" {
		t.Fatalf("question mismatch (-want +got):\n%s", diff)
	}

	q, ok := doc.Check("q1")
	require.True(t, ok)
	require.True(t, q.HasOption("B"))
	require.False(t, q.HasOption("C"))
}

func TestLoadYAML(t *testing.T) {
	content := `
stim:
  - pair: [video1, video2]
  - pair: [video3, video4]
questions:
  "2":
    q: Which agent acted worse?
    l: [First video, Second video]
`
	path := writeFile(t, t.TempDir(), "stim.yaml", content)

	doc, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"video3", "video4"}, doc.Stim[1].Pair)
	require.Equal(t, "Which agent acted worse?", doc.Questions["2"].Question)
}

func TestLoadMergesLocalOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "stim.json", baseDoc)
	writeFile(t, dir, "stim.local.json", `{text: {instructions: "Local instructions."}, stim: [{name: "only"}]}`)

	doc, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "Local instructions.", doc.Text["instructions"])
	require.Equal(t, []models.Stimulus{{Name: "only"}}, doc.Stim)
	require.Len(t, doc.Intro, 2, "fields missing from the override are kept")
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeFile(t, dir, "broken.json", `{stim: [`))
	require.Error(t, err)

	_, err = Load(writeFile(t, dir, "empty.json", `{stim: []}`))
	require.ErrorContains(t, err, "no stimuli")

	_, err = Load(writeFile(t, dir, "dup.json", `{
		stim: [{name: "a"}],
		checks: [{id: "q1"}, {id: "q1"}],
	}`))
	require.ErrorContains(t, err, "duplicate")
}

func TestLocalPath(t *testing.T) {
	require.Equal(t, "assets/stim.local.json5", LocalPath("assets/stim.json5"))
	require.Equal(t, "stim.local.yaml", LocalPath("stim.yaml"))
}
