package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/courtflow/pickleball-system/models"
	"github.com/lib/pq"
)

var (
	ErrMatchNotFound           = errors.New("match not found")
	ErrMatchCompetitionInvalid = errors.New("match competition conflict or invalid")
	ErrMatchSlotOccupied       = errors.New("match slot already occupied")
)

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	// GetByIDForUpdate читает матч с блокировкой строки. Запись матча —
	// точка сериализации: каждый переход состояния перечитывает статус
	// внутри транзакции, не доверяя устаревшей копии в памяти.
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	ListByDivision(ctx context.Context, divisionID int, stage *models.MatchStage, status *models.MatchStatus) ([]*models.Match, error)
	ListCompletedPoolMatches(ctx context.Context, divisionID int, poolName string) ([]*models.Match, error)
	UpdateResult(ctx context.Context, exec SQLExecutor, id int, games models.GameScores, status models.MatchStatus, winnerSideID *int, verification *models.MatchVerificationData) error
	UpdateVerification(ctx context.Context, exec SQLExecutor, id int, status models.MatchStatus, verification *models.MatchVerificationData, needsReview bool) error
	// FillSlot записывает сторону только в указанный слот, не трогая
	// противоположный слот, счёт и статус нижестоящего матча.
	FillSlot(ctx context.Context, exec SQLExecutor, id int, slot models.MatchSlot, side *models.Side) error
	// ResetToScheduled возвращает матч в scheduled без счёта и победителя.
	// Единственный путь назад по жизненному циклу (void спорного матча).
	ResetToScheduled(ctx context.Context, exec SQLExecutor, id int) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

const matchColumns = `
	id, competition_id, division_id, stage, round, match_number, pool_name,
	side_a_id, side_a_name, side_a_members, side_a_logo_key,
	side_b_id, side_b_name, side_b_members, side_b_logo_key,
	games, winner_side_id, status,
	next_match_id, next_match_slot, loser_next_match_id, loser_next_match_slot,
	verification, needs_review, scheduled_at, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMatch(row rowScanner) (*models.Match, error) {
	m := &models.Match{}
	var (
		sideAID, sideBID           sql.NullInt64
		sideAName, sideBName       sql.NullString
		sideAMembers               pq.Int64Array
		sideBMembers               pq.Int64Array
		sideALogoKey, sideBLogoKey sql.NullString
		nextSlot, loserNextSlot    sql.NullString
		verification               models.MatchVerificationData
		hasVerification            bool
	)

	var verificationRaw []byte
	err := row.Scan(
		&m.ID,
		&m.CompetitionID,
		&m.DivisionID,
		&m.Stage,
		&m.Round,
		&m.MatchNumber,
		&m.PoolName,
		&sideAID, &sideAName, &sideAMembers, &sideALogoKey,
		&sideBID, &sideBName, &sideBMembers, &sideBLogoKey,
		&m.Games,
		&m.WinnerSideID,
		&m.Status,
		&m.NextMatchID,
		&nextSlot,
		&m.LoserNextMatchID,
		&loserNextSlot,
		&verificationRaw,
		&m.NeedsReview,
		&m.ScheduledAt,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if sideAID.Valid {
		m.SideA = &models.Side{ID: int(sideAID.Int64), Name: sideAName.String, MemberIDs: sideAMembers}
		if sideALogoKey.Valid {
			m.SideA.LogoKey = &sideALogoKey.String
		}
	}
	if sideBID.Valid {
		m.SideB = &models.Side{ID: int(sideBID.Int64), Name: sideBName.String, MemberIDs: sideBMembers}
		if sideBLogoKey.Valid {
			m.SideB.LogoKey = &sideBLogoKey.String
		}
	}
	if nextSlot.Valid {
		s := models.MatchSlot(nextSlot.String)
		m.NextMatchSlot = &s
	}
	if loserNextSlot.Valid {
		s := models.MatchSlot(loserNextSlot.String)
		m.LoserNextMatchSlot = &s
	}
	if verificationRaw != nil {
		if err := verification.Scan(verificationRaw); err != nil {
			return nil, fmt.Errorf("failed to scan match verification data: %w", err)
		}
		hasVerification = true
	}
	if hasVerification {
		m.Verification = &verification
	}
	return m, nil
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	query := `
		INSERT INTO matches
			(competition_id, division_id, stage, round, match_number, pool_name,
			 side_a_id, side_a_name, side_a_members, side_a_logo_key,
			 side_b_id, side_b_name, side_b_members, side_b_logo_key,
			 games, winner_side_id, status,
			 next_match_id, next_match_slot, loser_next_match_id, loser_next_match_slot,
			 verification, needs_review, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
		RETURNING id, created_at`

	var (
		sideAID, sideBID             interface{}
		sideAName, sideBName         interface{}
		sideAMembers, sideBMembers   interface{}
		sideALogoKey, sideBLogoKey   interface{}
	)
	if match.SideA != nil {
		sideAID = match.SideA.ID
		sideAName = match.SideA.Name
		sideAMembers = pq.Int64Array(match.SideA.MemberIDs)
		if match.SideA.LogoKey != nil {
			sideALogoKey = *match.SideA.LogoKey
		}
	}
	if match.SideB != nil {
		sideBID = match.SideB.ID
		sideBName = match.SideB.Name
		sideBMembers = pq.Int64Array(match.SideB.MemberIDs)
		if match.SideB.LogoKey != nil {
			sideBLogoKey = *match.SideB.LogoKey
		}
	}

	err := exec.QueryRowContext(ctx, query,
		match.CompetitionID,
		match.DivisionID,
		match.Stage,
		match.Round,
		match.MatchNumber,
		match.PoolName,
		sideAID, sideAName, sideAMembers, sideALogoKey,
		sideBID, sideBName, sideBMembers, sideBLogoKey,
		match.Games,
		match.WinnerSideID,
		match.Status,
		match.NextMatchID,
		match.NextMatchSlot,
		match.LoserNextMatchID,
		match.LoserNextMatchSlot,
		match.Verification,
		match.NeedsReview,
		match.ScheduledAt,
	).Scan(&match.ID, &match.CreatedAt)

	return r.handleMatchError(err)
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `SELECT` + matchColumns + ` FROM matches WHERE id = $1`
	match, err := scanMatch(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match by id %d: %w", id, err)
	}
	return match, nil
}

func (r *postgresMatchRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	query := `SELECT` + matchColumns + ` FROM matches WHERE id = $1 FOR UPDATE`
	match, err := scanMatch(exec.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match %d for update: %w", id, err)
	}
	return match, nil
}

func (r *postgresMatchRepository) ListByDivision(ctx context.Context, divisionID int, stageFilter *models.MatchStage, statusFilter *models.MatchStatus) ([]*models.Match, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT` + matchColumns + ` FROM matches WHERE division_id = $1`)

	args := []interface{}{divisionID}
	placeholderIndex := 2

	if stageFilter != nil {
		queryBuilder.WriteString(" AND stage = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, *stageFilter)
		placeholderIndex++
	}
	if statusFilter != nil {
		queryBuilder.WriteString(" AND status = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, *statusFilter)
	}

	queryBuilder.WriteString(" ORDER BY round ASC, match_number ASC, id ASC")

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for division %d: %w", divisionID, err)
	}
	defer rows.Close()

	return collectMatches(rows)
}

func (r *postgresMatchRepository) ListCompletedPoolMatches(ctx context.Context, divisionID int, poolName string) ([]*models.Match, error) {
	query := `SELECT` + matchColumns + `
		FROM matches
		WHERE division_id = $1 AND stage = $2 AND pool_name = $3 AND status = $4
		ORDER BY round ASC, match_number ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, divisionID, models.StagePool, poolName, models.MatchStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed pool matches for division %d pool %q: %w", divisionID, poolName, err)
	}
	defer rows.Close()

	return collectMatches(rows)
}

func collectMatches(rows *sql.Rows) ([]*models.Match, error) {
	matches := make([]*models.Match, 0)
	for rows.Next() {
		match, scanErr := scanMatch(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match rows: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) UpdateResult(ctx context.Context, exec SQLExecutor, id int, games models.GameScores, status models.MatchStatus, winnerSideID *int, verification *models.MatchVerificationData) error {
	query := `
		UPDATE matches
		SET games = $2, status = $3, winner_side_id = $4, verification = $5
		WHERE id = $1`

	result, err := exec.ExecContext(ctx, query, id, games, status, winnerSideID, verification)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) UpdateVerification(ctx context.Context, exec SQLExecutor, id int, status models.MatchStatus, verification *models.MatchVerificationData, needsReview bool) error {
	query := `
		UPDATE matches
		SET status = $2, verification = $3, needs_review = $4
		WHERE id = $1`

	result, err := exec.ExecContext(ctx, query, id, status, verification, needsReview)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) FillSlot(ctx context.Context, exec SQLExecutor, id int, slot models.MatchSlot, side *models.Side) error {
	// Заполняется только пустой слот: предикат на NULL страхует от гонки
	// двух продвижений в один и тот же слот.
	var query string
	switch slot {
	case models.SlotA:
		query = `
			UPDATE matches
			SET side_a_id = $2, side_a_name = $3, side_a_members = $4, side_a_logo_key = $5
			WHERE id = $1 AND (side_a_id IS NULL OR side_a_id = $2)`
	case models.SlotB:
		query = `
			UPDATE matches
			SET side_b_id = $2, side_b_name = $3, side_b_members = $4, side_b_logo_key = $5
			WHERE id = $1 AND (side_b_id IS NULL OR side_b_id = $2)`
	default:
		return fmt.Errorf("invalid match slot %q", slot)
	}

	var logoKey interface{}
	if side.LogoKey != nil {
		logoKey = *side.LogoKey
	}
	result, err := exec.ExecContext(ctx, query, id, side.ID, side.Name, pq.Int64Array(side.MemberIDs), logoKey)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchSlotOccupied)
}

func (r *postgresMatchRepository) ResetToScheduled(ctx context.Context, exec SQLExecutor, id int) error {
	query := `
		UPDATE matches
		SET games = NULL, winner_side_id = NULL, status = $2, verification = NULL, needs_review = FALSE
		WHERE id = $1`

	result, err := exec.ExecContext(ctx, query, id, models.MatchStatusScheduled)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "foreign_key_violation":
			return fmt.Errorf("%w: %s", ErrMatchCompetitionInvalid, pqErr.Constraint)
		}
	}
	return fmt.Errorf("match repository error: %w", err)
}
