package app

import (
	"math/rand"
	"sync"
	"time"

	"chart-abtest-service/internal/domain"
	"github.com/google/uuid"
)

// VariantPicker chooses the chart encoding for a new trial.
type VariantPicker func() domain.Variant

// UniformVariant picks either variant with equal probability, independent of earlier trials.
func UniformVariant() domain.Variant {
	return domain.Variants[rand.Intn(len(domain.Variants))]
}

// NewSessionID returns a time-ordered unique identifier.
func NewSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Session owns one user's trial and result log. Events are serialized by mu.
type Session struct {
	id        string
	createdAt time.Time
	now       func() time.Time
	pick      VariantPicker

	mu      sync.Mutex
	trial   Trial
	results ResultLog
}

// NewSession is exported for infrastructure layers that need to seed sessions.
func NewSession(id string) *Session {
	return newSessionWithClock(id, time.Now, UniformVariant)
}

// NewSessionWithClock is test-only for deterministic timestamps and variants.
func NewSessionWithClock(id string, now func() time.Time, pick VariantPicker) *Session {
	return newSessionWithClock(id, now, pick)
}

func newSessionWithClock(id string, now func() time.Time, pick VariantPicker) *Session {
	if pick == nil {
		pick = UniformVariant
	}
	return &Session{
		id:        id,
		createdAt: now(),
		now:       now,
		pick:      pick,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// IsIdle reports whether the session has no trial in progress and no results.
func (s *Session) IsIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trial.Status() == domain.TrialIdle && s.results.Len() == 0
}

func (s *Session) status() domain.TrialStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trial.Status()
}

func (s *Session) beginTrial(ranked []domain.RankedEntity) (domain.TrialView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if err := s.trial.Start(ranked, s.pick(), now); err != nil {
		return domain.TrialView{}, err
	}
	return s.trial.View(now), nil
}

func (s *Session) tick() domain.TrialView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trial.View(s.now())
}

func (s *Session) submit(candidate string) (domain.AnswerResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	correct, record, err := s.trial.Submit(candidate, now)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if correct {
		s.results.Append(record)
	}
	return domain.AnswerResult{
		Candidate: candidate,
		Correct:   correct,
		Trial:     s.trial.View(now),
	}, nil
}

func (s *Session) resetTrial() domain.TrialView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trial.Reset()
	return s.trial.View(s.now())
}

func (s *Session) clearResults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results.Clear()
}

func (s *Session) resultsAndSummary() ([]domain.ResultRecord, []domain.SummaryRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results.Latest(), s.results.Summarize()
}

func (s *Session) snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.SessionSnapshot{
		SessionID: s.id,
		Trial:     s.trial.View(s.now()),
		Results:   s.results.Latest(),
		Summary:   s.results.Summarize(),
	}
}
