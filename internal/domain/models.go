package domain

import "time"

// RankedEntity is one row of the ranked dataset, e.g. a player and their ring count.
type RankedEntity struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Variant identifies the chart encoding shown during a trial.
type Variant string

const (
	// VariantPrimary is the bar chart.
	VariantPrimary Variant = "A"
	// VariantAlternate is the single stacked bar chart.
	VariantAlternate Variant = "B"
)

// Variants lists every chart encoding under test.
var Variants = []Variant{VariantPrimary, VariantAlternate}

// TrialStatus is the lifecycle state of a trial.
type TrialStatus string

const (
	TrialIdle      TrialStatus = "idle"
	TrialActive    TrialStatus = "active"
	TrialCompleted TrialStatus = "completed"
)

// FeedbackKind tells the UI how to style a feedback message.
type FeedbackKind string

const (
	FeedbackNone    FeedbackKind = ""
	FeedbackSuccess FeedbackKind = "success"
	FeedbackFailure FeedbackKind = "failure"
)

// Feedback is the transient message shown after an answer.
type Feedback struct {
	Kind    FeedbackKind `json:"kind,omitempty"`
	Message string       `json:"message,omitempty"`
}

// ResultRecord is the outcome of a trial that was answered correctly.
type ResultRecord struct {
	Variant        Variant   `json:"variant"`
	ElapsedSeconds float64   `json:"elapsedSeconds"`
	CompletedAt    time.Time `json:"completedAt"`
}

// SummaryRow aggregates answer times for one variant.
type SummaryRow struct {
	Variant Variant `json:"variant"`
	Count   int     `json:"count"`
	Mean    float64 `json:"mean"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// TrialView is a read-only snapshot of the trial for rendering.
type TrialView struct {
	Status         TrialStatus    `json:"status"`
	Variant        Variant        `json:"variant,omitempty"`
	StartedAt      *time.Time     `json:"startedAt,omitempty"`
	ElapsedSeconds float64        `json:"elapsedSeconds"`
	Candidates     []string       `json:"candidates,omitempty"`
	Ranked         []RankedEntity `json:"-"`
	Feedback       Feedback       `json:"feedback"`
}

// AnswerResult summarizes the outcome of a single submission.
type AnswerResult struct {
	Candidate string    `json:"candidate"`
	Correct   bool      `json:"correct"`
	Trial     TrialView `json:"trial"`
}

// SessionSnapshot is everything a client needs to redraw a session.
type SessionSnapshot struct {
	SessionID string         `json:"sessionId"`
	Question  string         `json:"question,omitempty"`
	Title     string         `json:"title,omitempty"`
	Trial     TrialView      `json:"trial"`
	Results   []ResultRecord `json:"results"`
	Summary   []SummaryRow   `json:"summary"`
}
