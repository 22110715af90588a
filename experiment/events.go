package experiment

// Event is an input from the participant's front end
type Event interface {
	event()
}

// Continue advances instructions, introduction slides and bot check result screens.
// Phase and Index name the screen it was shown on; presses from any other screen are stale.
type Continue struct {
	Phase Phase
	Index int
}

type BotCheckAnswer struct {
	Text string
}

type CheckAnswer struct {
	QuestionID string
	Value      string
}

type SubmitChecks struct{}

// TrialResponse answers the trial at TrialIndex. Responses for any other index are stale.
type TrialResponse struct {
	TrialIndex int
	Value      string
}

type Demographics struct {
	Sex      string
	Age      int
	Feedback string
}

type RetrySubmit struct{}

func (Continue) event()       {}
func (BotCheckAnswer) event() {}
func (CheckAnswer) event()    {}
func (SubmitChecks) event()   {}
func (TrialResponse) event()  {}
func (Demographics) event()   {}
func (RetrySubmit) event()    {}
