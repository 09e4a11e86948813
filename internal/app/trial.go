package app

import (
	"fmt"
	"sort"
	"time"

	"chart-abtest-service/internal/domain"
)

// Trial is a single attempt at spotting the top entry on one chart.
// It holds no clock; callers pass the current time into every transition.
type Trial struct {
	status    domain.TrialStatus
	variant   domain.Variant
	startedAt time.Time
	elapsed   time.Duration // frozen once completed
	ranked    []domain.RankedEntity
	truth     domain.RankedEntity
	feedback  domain.Feedback
}

// Status returns the lifecycle state. The zero Trial is idle.
func (t *Trial) Status() domain.TrialStatus {
	if t.status == "" {
		return domain.TrialIdle
	}
	return t.status
}

// Start moves an idle trial to active. ranked must be non-empty.
func (t *Trial) Start(ranked []domain.RankedEntity, variant domain.Variant, now time.Time) error {
	if t.Status() != domain.TrialIdle {
		return domain.ErrTrialInProgress
	}
	if len(ranked) == 0 {
		return domain.ErrDataUnavailable
	}

	subset := make([]domain.RankedEntity, len(ranked))
	copy(subset, ranked)
	// Stable so that the first of several tied leaders stays the accepted answer.
	sort.SliceStable(subset, func(i, j int) bool {
		return subset[i].Score > subset[j].Score
	})

	t.status = domain.TrialActive
	t.variant = variant
	t.startedAt = now
	t.elapsed = 0
	t.ranked = subset
	t.truth = subset[0]
	t.feedback = domain.Feedback{}
	return nil
}

// Elapsed is a pure read of the running timer.
func (t *Trial) Elapsed(now time.Time) time.Duration {
	switch t.Status() {
	case domain.TrialActive:
		if d := now.Sub(t.startedAt); d > 0 {
			return d
		}
		return 0
	case domain.TrialCompleted:
		return t.elapsed
	default:
		return 0
	}
}

// Submit checks candidate against the ground truth. A correct answer completes
// the trial and returns the record to log; a wrong or unknown name only updates
// the feedback and the timer keeps running.
func (t *Trial) Submit(candidate string, now time.Time) (bool, domain.ResultRecord, error) {
	switch t.Status() {
	case domain.TrialIdle:
		return false, domain.ResultRecord{}, domain.ErrNoActiveTrial
	case domain.TrialCompleted:
		return false, domain.ResultRecord{}, domain.ErrDuplicateSubmission
	}

	if candidate != t.truth.Name {
		t.feedback = domain.Feedback{
			Kind:    domain.FeedbackFailure,
			Message: fmt.Sprintf("Incorrect. %s is not the top entry. Try again!", candidate),
		}
		return false, domain.ResultRecord{}, nil
	}

	t.elapsed = t.Elapsed(now)
	t.status = domain.TrialCompleted
	t.feedback = domain.Feedback{
		Kind: domain.FeedbackSuccess,
		Message: fmt.Sprintf("Correct! You identified %s as the top entry in %.2f seconds using Chart %s.",
			candidate, t.elapsed.Seconds(), t.variant),
	}
	return true, domain.ResultRecord{
		Variant:        t.variant,
		ElapsedSeconds: t.elapsed.Seconds(),
		CompletedAt:    now,
	}, nil
}

// Reset returns the trial to idle from any state.
func (t *Trial) Reset() {
	*t = Trial{}
}

// View snapshots the trial for rendering.
func (t *Trial) View(now time.Time) domain.TrialView {
	view := domain.TrialView{
		Status:         t.Status(),
		Variant:        t.variant,
		ElapsedSeconds: t.Elapsed(now).Seconds(),
		Feedback:       t.feedback,
	}
	if view.Status == domain.TrialIdle {
		return view
	}
	started := t.startedAt
	view.StartedAt = &started
	view.Ranked = make([]domain.RankedEntity, len(t.ranked))
	copy(view.Ranked, t.ranked)
	view.Candidates = make([]string, 0, len(t.ranked))
	for _, entity := range t.ranked {
		view.Candidates = append(view.Candidates, entity.Name)
	}
	return view
}
