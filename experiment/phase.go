package experiment

import "fmt"

// Phase is one screen of the experiment flow
type Phase int

const (
	PhaseNone Phase = iota
	PhaseBotCheck
	PhaseInstructions
	PhaseIntroduction
	PhaseComprehension
	PhaseTrial
	PhaseDemographics
	PhaseSubmit
	PhaseComplete
)

var phaseNames = [...]string{
	"none",
	"bot_check",
	"instructions",
	"introduction",
	"comprehension",
	"trial",
	"demographics",
	"submit",
	"complete",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}
