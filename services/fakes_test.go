package services

import (
	"context"
	"sync"
	"time"

	"github.com/courtflow/pickleball-system/models"
	"github.com/courtflow/pickleball-system/repositories"
)

// fakeTxManager выполняет замыкание без реальной транзакции: in-memory
// репозитории и так атомарны в рамках одного теста.
type fakeTxManager struct{}

func (fakeTxManager) WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	return fn(nil)
}

type fakeMatchRepo struct {
	mu                     sync.Mutex
	nextID                 int
	matches                map[int]*models.Match
	verificationWriteCount int
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{nextID: 1, matches: make(map[int]*models.Match)}
}

func (r *fakeMatchRepo) put(m *models.Match) *models.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == 0 {
		m.ID = r.nextID
		r.nextID++
	} else if m.ID >= r.nextID {
		r.nextID = m.ID + 1
	}
	stored := cloneMatch(m)
	r.matches[stored.ID] = stored
	return cloneMatch(stored)
}

func cloneMatch(m *models.Match) *models.Match {
	c := *m
	if m.SideA != nil {
		side := *m.SideA
		c.SideA = &side
	}
	if m.SideB != nil {
		side := *m.SideB
		c.SideB = &side
	}
	if m.WinnerSideID != nil {
		id := *m.WinnerSideID
		c.WinnerSideID = &id
	}
	if m.Verification != nil {
		v := *m.Verification
		c.Verification = &v
	}
	c.Games = append(models.GameScores(nil), m.Games...)
	return &c
}

func (r *fakeMatchRepo) Create(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error {
	stored := r.put(match)
	match.ID = stored.ID
	return nil
}

func (r *fakeMatchRepo) GetByID(ctx context.Context, id int) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	return cloneMatch(m), nil
}

func (r *fakeMatchRepo) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Match, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeMatchRepo) ListByDivision(ctx context.Context, divisionID int, stage *models.MatchStage, status *models.MatchStatus) ([]*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Match
	for _, m := range r.matches {
		if m.DivisionID != divisionID {
			continue
		}
		if stage != nil && m.Stage != *stage {
			continue
		}
		if status != nil && m.Status != *status {
			continue
		}
		out = append(out, cloneMatch(m))
	}
	return out, nil
}

func (r *fakeMatchRepo) ListCompletedPoolMatches(ctx context.Context, divisionID int, poolName string) ([]*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Match
	for _, m := range r.matches {
		if m.DivisionID != divisionID || m.Stage != models.StagePool || m.Status != models.MatchStatusCompleted {
			continue
		}
		if m.PoolName == nil || *m.PoolName != poolName {
			continue
		}
		out = append(out, cloneMatch(m))
	}
	return out, nil
}

func (r *fakeMatchRepo) UpdateResult(ctx context.Context, exec repositories.SQLExecutor, id int, games models.GameScores, status models.MatchStatus, winnerSideID *int, verification *models.MatchVerificationData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.Games = append(models.GameScores(nil), games...)
	m.Status = status
	m.WinnerSideID = winnerSideID
	m.Verification = verification
	return nil
}

func (r *fakeMatchRepo) UpdateVerification(ctx context.Context, exec repositories.SQLExecutor, id int, status models.MatchStatus, verification *models.MatchVerificationData, needsReview bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.Status = status
	m.Verification = verification
	m.NeedsReview = needsReview
	r.verificationWriteCount++
	return nil
}

func (r *fakeMatchRepo) FillSlot(ctx context.Context, exec repositories.SQLExecutor, id int, slot models.MatchSlot, side *models.Side) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	s := *side
	if slot == models.SlotA {
		if m.SideA != nil && m.SideA.ID != side.ID {
			return repositories.ErrMatchSlotOccupied
		}
		m.SideA = &s
	} else {
		if m.SideB != nil && m.SideB.ID != side.ID {
			return repositories.ErrMatchSlotOccupied
		}
		m.SideB = &s
	}
	return nil
}

func (r *fakeMatchRepo) ResetToScheduled(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.Games = nil
	m.WinnerSideID = nil
	m.Verification = nil
	m.NeedsReview = false
	m.Status = models.MatchStatusScheduled
	return nil
}

type fakeSubmissionRepo struct {
	mu          sync.Mutex
	nextID      int
	submissions map[int]*models.ScoreSubmission
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{nextID: 1, submissions: make(map[int]*models.ScoreSubmission)}
}

func cloneSubmission(s *models.ScoreSubmission) *models.ScoreSubmission {
	c := *s
	c.Games = append(models.GameScores(nil), s.Games...)
	c.Confirmations = append([]int64(nil), s.Confirmations...)
	return &c
}

func (r *fakeSubmissionRepo) Create(ctx context.Context, exec repositories.SQLExecutor, submission *models.ScoreSubmission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.submissions {
		if existing.MatchID == submission.MatchID && existing.Status == models.SubmissionPendingOpponent {
			return repositories.ErrSubmissionConflict
		}
	}
	submission.ID = r.nextID
	r.nextID++
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = time.Now()
	}
	r.submissions[submission.ID] = cloneSubmission(submission)
	return nil
}

func (r *fakeSubmissionRepo) GetByID(ctx context.Context, id int) (*models.ScoreSubmission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.submissions[id]
	if !ok {
		return nil, repositories.ErrSubmissionNotFound
	}
	return cloneSubmission(s), nil
}

func (r *fakeSubmissionRepo) GetOpenByMatch(ctx context.Context, exec repositories.SQLExecutor, matchID int) (*models.ScoreSubmission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.submissions {
		if s.MatchID == matchID && s.Status == models.SubmissionPendingOpponent {
			return cloneSubmission(s), nil
		}
	}
	return nil, repositories.ErrSubmissionNotFound
}

func (r *fakeSubmissionRepo) AddConfirmation(ctx context.Context, exec repositories.SQLExecutor, id int, userID int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.submissions[id]
	if !ok {
		return nil, repositories.ErrSubmissionNotFound
	}
	for _, existing := range s.Confirmations {
		if existing == userID {
			return append([]int64(nil), s.Confirmations...), nil
		}
	}
	s.Confirmations = append(s.Confirmations, userID)
	return append([]int64(nil), s.Confirmations...), nil
}

func (r *fakeSubmissionRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.SubmissionStatus, rejectionReason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.submissions[id]
	if !ok {
		return repositories.ErrSubmissionNotFound
	}
	s.Status = status
	s.RejectionReason = rejectionReason
	now := time.Now()
	s.ResolvedAt = &now
	return nil
}

func (r *fakeSubmissionRepo) ListByMatch(ctx context.Context, matchID int) ([]*models.ScoreSubmission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ScoreSubmission
	for _, s := range r.submissions {
		if s.MatchID == matchID {
			out = append(out, cloneSubmission(s))
		}
	}
	return out, nil
}

type fakeCompetitionRepo struct {
	competitions map[int]*models.Competition
	divisions    map[int]*models.Division
}

func newFakeCompetitionRepo() *fakeCompetitionRepo {
	return &fakeCompetitionRepo{
		competitions: make(map[int]*models.Competition),
		divisions:    make(map[int]*models.Division),
	}
}

func (r *fakeCompetitionRepo) GetByID(ctx context.Context, id int) (*models.Competition, error) {
	c, ok := r.competitions[id]
	if !ok {
		return nil, repositories.ErrCompetitionNotFound
	}
	copy := *c
	return &copy, nil
}

func (r *fakeCompetitionRepo) GetDivision(ctx context.Context, id int) (*models.Division, error) {
	d, ok := r.divisions[id]
	if !ok {
		return nil, repositories.ErrDivisionNotFound
	}
	copy := *d
	return &copy, nil
}

func (r *fakeCompetitionRepo) ListDivisions(ctx context.Context, competitionID int) ([]*models.Division, error) {
	var out []*models.Division
	for _, d := range r.divisions {
		if d.CompetitionID == competitionID {
			copy := *d
			out = append(out, &copy)
		}
	}
	return out, nil
}

type fakeStandingRepo struct {
	mu           sync.Mutex
	replaceErr   error
	replacePanic bool
	rows         map[string][]*models.PoolStanding // key: poolName
}

func newFakeStandingRepo() *fakeStandingRepo {
	return &fakeStandingRepo{rows: make(map[string][]*models.PoolStanding)}
}

func (r *fakeStandingRepo) ReplacePool(ctx context.Context, exec repositories.SQLExecutor, divisionID int, poolName string, rows []*models.PoolStanding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replacePanic {
		panic("standings storage unavailable")
	}
	if r.replaceErr != nil {
		return r.replaceErr
	}
	r.rows[poolName] = rows
	return nil
}

func (r *fakeStandingRepo) ListByPool(ctx context.Context, divisionID int, poolName string) ([]*models.PoolStanding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[poolName], nil
}

func (r *fakeStandingRepo) ListByDivision(ctx context.Context, divisionID int) ([]*models.PoolStanding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PoolStanding
	for _, rows := range r.rows {
		out = append(out, rows...)
	}
	return out, nil
}

// recordingNotifier фиксирует вызовы для проверок.
type recordingNotifier struct {
	mu                   sync.Mutex
	submitted            []int
	disputed             []int
	finalized            []int
	resolved             []string
	consistencyViolation []int
}

func (n *recordingNotifier) ScoreSubmitted(match *models.Match, submitterID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.submitted = append(n.submitted, match.ID)
}

func (n *recordingNotifier) MatchDisputed(match *models.Match, userID int64, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disputed = append(n.disputed, match.ID)
}

func (n *recordingNotifier) MatchFinalized(match *models.Match) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finalized = append(n.finalized, match.ID)
}

func (n *recordingNotifier) DisputeResolved(match *models.Match, organizerID int64, action string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resolved = append(n.resolved, action)
}

func (n *recordingNotifier) ConsistencyViolation(match *models.Match, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.consistencyViolation = append(n.consistencyViolation, match.ID)
}

type broadcastRecord struct {
	Room  string
	Event MatchEvent
}

type recordingHub struct {
	mu     sync.Mutex
	events []broadcastRecord
}

func (h *recordingHub) BroadcastToRoom(roomID string, message interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if event, ok := message.(MatchEvent); ok {
		h.events = append(h.events, broadcastRecord{Room: roomID, Event: event})
	}
}

func (h *recordingHub) eventTypes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	types := make([]string, 0, len(h.events))
	for _, e := range h.events {
		types = append(types, e.Event.Type)
	}
	return types
}
