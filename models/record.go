package models

import "time"

// Presentation order of a paired trial
const (
	OrderNotFlipped = "not flipped"
	OrderFlipped    = "flipped"
)

// Session statuses stored in the database
const (
	StatusStarted   = "started"
	StatusSubmitted = "submitted"
	StatusComplete  = "complete"
)

// ResponseRecord is one participant response to a trial
type ResponseRecord struct {
	SessionID         string
	TrialIndex        int
	StimulusRef       string
	PresentationOrder string
	Condition         Condition
	Response          string
	RecordedAt        time.Time
}

// SessionSummary stores a participant session
type SessionSummary struct {
	ID             string
	ChatID         int64
	Variant        string
	Condition      Condition
	Counterbalance int
	Status         string
	CompletionCode string
	CreatedAt      time.Time
	CompletedAt    time.Time
	Trials         int
}
