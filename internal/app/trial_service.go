package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"chart-abtest-service/internal/domain"
	"github.com/sirupsen/logrus"
)

// DefaultTopN is how many ranked entities a trial shows when not configured.
const DefaultTopN = 10

// SessionRepository abstracts how test sessions are stored (in-memory, Redis, etc).
type SessionRepository interface {
	Create() *Session
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
	DeleteIfIdle(sessionID string) bool
}

// RankingRepository fetches the ranked dataset, sorted by score descending.
type RankingRepository interface {
	TopRanked(ctx context.Context, limit int) ([]domain.RankedEntity, error)
}

// Settings holds the presentation and sizing knobs of a test.
type Settings struct {
	TopN     int
	Question string
	Title    string
}

// TrialService drives sessions through the six control operations.
type TrialService struct {
	sessions SessionRepository
	rankings RankingRepository
	settings Settings
	log      logrus.FieldLogger
}

func NewTrialService(store SessionRepository, rankings RankingRepository, settings Settings, log logrus.FieldLogger) *TrialService {
	if settings.TopN <= 0 {
		settings.TopN = DefaultTopN
	}
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	return &TrialService{sessions: store, rankings: rankings, settings: settings, log: log}
}

// CreateSession opens a new isolated session.
func (s *TrialService) CreateSession(_ context.Context) domain.SessionSnapshot {
	session := s.sessions.Create()
	s.log.WithField("session", session.ID()).Info("session created")
	return s.decorate(session.snapshot())
}

// Snapshot returns the full state of a session.
func (s *TrialService) Snapshot(_ context.Context, sessionID string) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	return s.decorate(session.snapshot()), nil
}

// StartTrial fetches the ranked dataset and shows a randomly chosen chart.
// On any failure the trial stays idle.
func (s *TrialService) StartTrial(ctx context.Context, sessionID string) (domain.TrialView, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.TrialView{}, domain.ErrSessionNotFound
	}
	if session.status() != domain.TrialIdle {
		return domain.TrialView{}, domain.ErrTrialInProgress
	}

	ranked, err := s.fetchRanked(ctx)
	if err != nil {
		s.log.WithError(err).WithField("session", sessionID).Warn("start trial: ranked data unavailable")
		return domain.TrialView{}, err
	}

	view, err := session.beginTrial(ranked)
	if err != nil {
		return domain.TrialView{}, err
	}
	s.log.WithFields(logrus.Fields{
		"session": sessionID,
		"variant": view.Variant,
		"entries": len(view.Candidates),
	}).Info("trial started")
	return view, nil
}

// Tick samples the trial timer without changing state.
func (s *TrialService) Tick(_ context.Context, sessionID string) (domain.TrialView, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.TrialView{}, domain.ErrSessionNotFound
	}
	return session.tick(), nil
}

// SubmitAnswer checks a candidate name. Wrong or unknown names are not errors.
func (s *TrialService) SubmitAnswer(_ context.Context, sessionID, candidate string) (domain.AnswerResult, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.AnswerResult{}, domain.ErrSessionNotFound
	}

	result, err := session.submit(candidate)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if result.Correct {
		s.log.WithFields(logrus.Fields{
			"session": sessionID,
			"variant": result.Trial.Variant,
			"elapsed": result.Trial.ElapsedSeconds,
		}).Info("trial completed")
	}
	return result, nil
}

// ResetTrial returns the trial to idle and keeps the results.
func (s *TrialService) ResetTrial(_ context.Context, sessionID string) (domain.TrialView, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.TrialView{}, domain.ErrSessionNotFound
	}
	return session.resetTrial(), nil
}

// NewSession replaces a session with a fresh one: new id, idle trial, empty log.
// An unknown previous id still yields a new session.
func (s *TrialService) NewSession(_ context.Context, previousID string) domain.SessionSnapshot {
	if previousID != "" {
		s.sessions.Delete(previousID)
	}
	session := s.sessions.Create()
	s.log.WithFields(logrus.Fields{
		"session":  session.ID(),
		"previous": previousID,
	}).Info("session renewed")
	return s.decorate(session.snapshot())
}

// ReleaseSession drops a session nobody has used yet, e.g. when the connection
// that opened it goes away. Sessions with a trial or results stay resumable.
func (s *TrialService) ReleaseSession(_ context.Context, sessionID string) {
	if s.sessions.DeleteIfIdle(sessionID) {
		s.log.WithField("session", sessionID).Debug("idle session released")
	}
}

// ClearResults empties the result log of a session.
func (s *TrialService) ClearResults(_ context.Context, sessionID string) error {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.clearResults()
	return nil
}

// Results lists completed trials newest first together with the summary.
func (s *TrialService) Results(_ context.Context, sessionID string) ([]domain.ResultRecord, []domain.SummaryRow, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	records, summary := session.resultsAndSummary()
	return records, summary, nil
}

func (s *TrialService) fetchRanked(ctx context.Context) ([]domain.RankedEntity, error) {
	ranked, err := s.rankings.TopRanked(ctx, s.settings.TopN)
	if err != nil {
		if errors.Is(err, domain.ErrDataUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrDataUnavailable, err)
	}
	if len(ranked) == 0 {
		return nil, fmt.Errorf("%w: empty ranking", domain.ErrDataUnavailable)
	}
	for i, entity := range ranked {
		if entity.Name == "" {
			return nil, fmt.Errorf("%w: entry %d has no name", domain.ErrDataUnavailable, i)
		}
		if math.IsNaN(entity.Score) || math.IsInf(entity.Score, 0) {
			return nil, fmt.Errorf("%w: entry %q has a non-numeric score", domain.ErrDataUnavailable, entity.Name)
		}
	}
	if len(ranked) > s.settings.TopN {
		// Providers should honor the limit; trim the best N if one did not.
		trimmed := make([]domain.RankedEntity, len(ranked))
		copy(trimmed, ranked)
		sort.SliceStable(trimmed, func(i, j int) bool {
			return trimmed[i].Score > trimmed[j].Score
		})
		ranked = trimmed[:s.settings.TopN]
	}
	return ranked, nil
}

func (s *TrialService) decorate(snapshot domain.SessionSnapshot) domain.SessionSnapshot {
	snapshot.Question = s.settings.Question
	snapshot.Title = s.settings.Title
	return snapshot
}
