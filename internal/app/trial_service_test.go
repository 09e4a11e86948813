package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chart-abtest-service/internal/app"
	"chart-abtest-service/internal/domain"
	"chart-abtest-service/internal/infra/memory"
)

func TestWrongGuessKeepsTimerThenCorrectCompletes(t *testing.T) {
	ctx := context.Background()
	service, clock := newTestService(celtics(), 3)
	id := service.CreateSession(ctx).SessionID

	view, err := service.StartTrial(ctx, id)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if view.Status != domain.TrialActive || len(view.Candidates) != 3 {
		t.Fatalf("expected active trial with 3 candidates, got %+v", view)
	}

	clock.Advance(time.Second)
	result, err := service.SubmitAnswer(ctx, id, "Sam Jones")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.Correct || result.Trial.Status != domain.TrialActive {
		t.Fatalf("expected wrong answer to keep trial active, got %+v", result)
	}

	clock.Advance(time.Second)
	result, err = service.SubmitAnswer(ctx, id, "Bill Russell")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !result.Correct || result.Trial.Status != domain.TrialCompleted {
		t.Fatalf("expected completed trial, got %+v", result)
	}

	records, _, err := service.Results(ctx, id)
	if err != nil {
		t.Fatalf("results failed: %v", err)
	}
	if len(records) != 1 || records[0].ElapsedSeconds != 2 || records[0].Variant != domain.VariantPrimary {
		t.Fatalf("expected one 2s record, got %+v", records)
	}
}

func TestRepeatedCorrectAnswerLogsOnce(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(celtics(), 10)
	id := service.CreateSession(ctx).SessionID

	if _, err := service.StartTrial(ctx, id); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, id, "Bill Russell"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := service.SubmitAnswer(ctx, id, "Bill Russell"); !errors.Is(err, domain.ErrDuplicateSubmission) {
			t.Fatalf("expected duplicate submission, got %v", err)
		}
	}
	records, _, _ := service.Results(ctx, id)
	if len(records) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(records))
	}
}

func TestSingleActiveTrialPerSession(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(celtics(), 10)
	id := service.CreateSession(ctx).SessionID

	if _, err := service.StartTrial(ctx, id); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := service.StartTrial(ctx, id); !errors.Is(err, domain.ErrTrialInProgress) {
		t.Fatalf("expected trial in progress, got %v", err)
	}
}

func TestTickDoesNotChangeState(t *testing.T) {
	ctx := context.Background()
	service, clock := newTestService(celtics(), 10)
	id := service.CreateSession(ctx).SessionID

	idle, err := service.Tick(ctx, id)
	if err != nil || idle.Status != domain.TrialIdle || idle.ElapsedSeconds != 0 {
		t.Fatalf("expected idle tick, got %+v err=%v", idle, err)
	}

	if _, err := service.StartTrial(ctx, id); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	clock.Advance(1250 * time.Millisecond)
	first, _ := service.Tick(ctx, id)
	for i := 0; i < 10; i++ {
		again, _ := service.Tick(ctx, id)
		if again.ElapsedSeconds != first.ElapsedSeconds || again.Status != first.Status || again.Variant != first.Variant {
			t.Fatalf("tick %d changed state: %+v vs %+v", i, again, first)
		}
	}
	if first.ElapsedSeconds != 1.25 {
		t.Fatalf("expected 1.25s, got %v", first.ElapsedSeconds)
	}
}

func TestStartFailsWhenDataUnavailable(t *testing.T) {
	ctx := context.Background()
	service := app.NewTrialService(newClockStore(newClock()), failingRankings{}, app.Settings{}, nil)
	id := service.CreateSession(ctx).SessionID

	if _, err := service.StartTrial(ctx, id); !errors.Is(err, domain.ErrDataUnavailable) {
		t.Fatalf("expected data unavailable, got %v", err)
	}
	view, _ := service.Tick(ctx, id)
	if view.Status != domain.TrialIdle {
		t.Fatalf("expected trial to remain idle, got %s", view.Status)
	}
}

func TestStartRejectsMalformedRows(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService([]domain.RankedEntity{{Name: "", Score: 3}}, 10)
	id := service.CreateSession(ctx).SessionID

	if _, err := service.StartTrial(ctx, id); !errors.Is(err, domain.ErrDataUnavailable) {
		t.Fatalf("expected data unavailable for unnamed row, got %v", err)
	}
}

func TestResetKeepsResultsAndNewSessionClears(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(celtics(), 10)
	id := service.CreateSession(ctx).SessionID

	for i := 0; i < 2; i++ {
		if _, err := service.StartTrial(ctx, id); err != nil {
			t.Fatalf("start %d failed: %v", i, err)
		}
		if _, err := service.SubmitAnswer(ctx, id, "Bill Russell"); err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
		if _, err := service.ResetTrial(ctx, id); err != nil {
			t.Fatalf("reset %d failed: %v", i, err)
		}
	}
	records, summary, _ := service.Results(ctx, id)
	if len(records) != 2 || len(summary) != 1 {
		t.Fatalf("expected 2 records and 1 summary row, got %d/%d", len(records), len(summary))
	}

	fresh := service.NewSession(ctx, id)
	if fresh.SessionID == id {
		t.Fatalf("expected a new session id")
	}
	if len(fresh.Results) != 0 || fresh.Trial.Status != domain.TrialIdle {
		t.Fatalf("expected empty idle session, got %+v", fresh)
	}
	if _, err := service.Snapshot(ctx, id); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected previous session to be gone, got %v", err)
	}
}

func TestClearResults(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(celtics(), 10)
	id := service.CreateSession(ctx).SessionID

	_, _ = service.StartTrial(ctx, id)
	_, _ = service.SubmitAnswer(ctx, id, "Bill Russell")
	if err := service.ClearResults(ctx, id); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	records, summary, _ := service.Results(ctx, id)
	if len(records) != 0 || len(summary) != 0 {
		t.Fatalf("expected empty results, got %+v %+v", records, summary)
	}
	snapshot, _ := service.Snapshot(ctx, id)
	if snapshot.Trial.Status != domain.TrialCompleted {
		t.Fatalf("clearing results must not touch the trial, got %s", snapshot.Trial.Status)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(celtics(), 10)
	a := service.CreateSession(ctx).SessionID
	b := service.CreateSession(ctx).SessionID

	_, _ = service.StartTrial(ctx, a)
	view, _ := service.Tick(ctx, b)
	if view.Status != domain.TrialIdle {
		t.Fatalf("starting a trial in one session leaked into another")
	}
}

func TestUnknownSession(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(celtics(), 10)

	if _, err := service.StartTrial(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session error, got %v", err)
	}
	if err := service.ClearResults(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session error, got %v", err)
	}
	if snapshot := service.NewSession(ctx, "missing"); snapshot.SessionID == "" {
		t.Fatalf("new session must succeed for unknown ids")
	}
}

func TestSnapshotCarriesQuestion(t *testing.T) {
	ctx := context.Background()
	store := newClockStore(newClock())
	service := app.NewTrialService(store, memory.NewRankingRepository(memory.NewStaticRankingLoader(celtics()), time.Minute), app.Settings{
		Question: "Who has the most rings?",
		Title:    "Rings",
	}, nil)
	snapshot := service.CreateSession(ctx)
	if snapshot.Question != "Who has the most rings?" || snapshot.Title != "Rings" {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
}

func TestUniformVariantPicksBoth(t *testing.T) {
	seen := map[domain.Variant]bool{}
	for i := 0; i < 200 && len(seen) < 2; i++ {
		seen[app.UniformVariant()] = true
	}
	if !seen[domain.VariantPrimary] || !seen[domain.VariantAlternate] {
		t.Fatalf("expected both variants, got %v", seen)
	}
}

func TestNewSessionIDIsUnique(t *testing.T) {
	ids := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := app.NewSessionID()
		if ids[id] {
			t.Fatalf("duplicate id %s", id)
		}
		ids[id] = true
	}
}

func newTestService(ranked []domain.RankedEntity, topN int) (*app.TrialService, *fakeClock) {
	clock := newClock()
	rankings := memory.NewRankingRepository(memory.NewStaticRankingLoader(ranked), time.Minute)
	service := app.NewTrialService(newClockStore(clock), rankings, app.Settings{TopN: topN}, nil)
	return service, clock
}

func celtics() []domain.RankedEntity {
	return []domain.RankedEntity{
		{Name: "Bill Russell", Score: 11},
		{Name: "Sam Jones", Score: 10},
		{Name: "Tom Heinsohn", Score: 8},
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// clockStore hands out sessions with a shared fake clock that always show the Primary chart.
type clockStore struct {
	clock    *fakeClock
	mu       sync.Mutex
	next     int
	sessions map[string]*app.Session
}

func newClockStore(clock *fakeClock) *clockStore {
	return &clockStore{clock: clock, sessions: make(map[string]*app.Session)}
}

func (s *clockStore) Create() *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := fmt.Sprintf("session-%d", s.next)
	session := app.NewSessionWithClock(id, s.clock.Now, func() domain.Variant { return domain.VariantPrimary })
	s.sessions[id] = session
	return session
}

func (s *clockStore) Get(id string) (*app.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	return session, ok
}

func (s *clockStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *clockStore) DeleteIfIdle(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || !session.IsIdle() {
		return false
	}
	delete(s.sessions, id)
	return true
}

type failingRankings struct{}

func (failingRankings) TopRanked(context.Context, int) ([]domain.RankedEntity, error) {
	return nil, errors.New("spreadsheet unreachable")
}
