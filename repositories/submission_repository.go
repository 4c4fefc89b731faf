package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/courtflow/pickleball-system/models"
	"github.com/lib/pq"
)

var (
	ErrSubmissionNotFound = errors.New("score submission not found")
	// Уникальный частичный индекс по (match_id) WHERE status = 'pending_opponent'
	// дублирует проверку в сервисе на уровне БД.
	ErrSubmissionConflict = errors.New("an open score submission already exists for this match")
)

type SubmissionRepository interface {
	Create(ctx context.Context, exec SQLExecutor, submission *models.ScoreSubmission) error
	GetByID(ctx context.Context, id int) (*models.ScoreSubmission, error)
	// GetOpenByMatch возвращает единственную открытую (pending_opponent)
	// заявку матча, либо ErrSubmissionNotFound.
	GetOpenByMatch(ctx context.Context, exec SQLExecutor, matchID int) (*models.ScoreSubmission, error)
	// AddConfirmation — атомарный add-to-set: повторное подтверждение тем же
	// пользователем не изменяет множество, конкурентные подтверждения не
	// затирают друг друга. Возвращает актуальное множество подтверждений.
	AddConfirmation(ctx context.Context, exec SQLExecutor, id int, userID int64) ([]int64, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.SubmissionStatus, rejectionReason *string) error
	ListByMatch(ctx context.Context, matchID int) ([]*models.ScoreSubmission, error)
}

type postgresSubmissionRepository struct {
	db *sql.DB
}

func NewPostgresSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &postgresSubmissionRepository{db: db}
}

const submissionColumns = `
	id, uid, match_id, submitter_id, side_a_id, side_b_id, games, winner_side_id,
	status, confirmations, rejection_reason, created_at, resolved_at`

func scanSubmission(row rowScanner) (*models.ScoreSubmission, error) {
	s := &models.ScoreSubmission{}
	var confirmations pq.Int64Array
	err := row.Scan(
		&s.ID,
		&s.UID,
		&s.MatchID,
		&s.SubmitterID,
		&s.SideAID,
		&s.SideBID,
		&s.Games,
		&s.WinnerSideID,
		&s.Status,
		&confirmations,
		&s.RejectionReason,
		&s.CreatedAt,
		&s.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Confirmations = confirmations
	return s, nil
}

func (r *postgresSubmissionRepository) Create(ctx context.Context, exec SQLExecutor, submission *models.ScoreSubmission) error {
	query := `
		INSERT INTO score_submissions
			(uid, match_id, submitter_id, side_a_id, side_b_id, games, winner_side_id, status, confirmations)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err := exec.QueryRowContext(ctx, query,
		submission.UID,
		submission.MatchID,
		submission.SubmitterID,
		submission.SideAID,
		submission.SideBID,
		submission.Games,
		submission.WinnerSideID,
		submission.Status,
		pq.Int64Array(submission.Confirmations),
	).Scan(&submission.ID, &submission.CreatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrSubmissionConflict
		}
		return fmt.Errorf("failed to create score submission for match %d: %w", submission.MatchID, err)
	}
	return nil
}

func (r *postgresSubmissionRepository) GetByID(ctx context.Context, id int) (*models.ScoreSubmission, error) {
	query := `SELECT` + submissionColumns + ` FROM score_submissions WHERE id = $1`
	submission, err := scanSubmission(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to scan score submission by id %d: %w", id, err)
	}
	return submission, nil
}

func (r *postgresSubmissionRepository) GetOpenByMatch(ctx context.Context, exec SQLExecutor, matchID int) (*models.ScoreSubmission, error) {
	query := `SELECT` + submissionColumns + `
		FROM score_submissions
		WHERE match_id = $1 AND status = $2`

	submission, err := scanSubmission(exec.QueryRowContext(ctx, query, matchID, models.SubmissionPendingOpponent))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to scan open submission for match %d: %w", matchID, err)
	}
	return submission, nil
}

func (r *postgresSubmissionRepository) AddConfirmation(ctx context.Context, exec SQLExecutor, id int, userID int64) ([]int64, error) {
	// Одним UPDATE: append только если userID ещё нет в массиве, RETURNING
	// отдаёт итоговое множество. Никакого read-modify-write списка.
	query := `
		UPDATE score_submissions
		SET confirmations = CASE
			WHEN $2 = ANY(confirmations) THEN confirmations
			ELSE array_append(confirmations, $2)
		END
		WHERE id = $1
		RETURNING confirmations`

	var confirmations pq.Int64Array
	err := exec.QueryRowContext(ctx, query, id, userID).Scan(&confirmations)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to add confirmation to submission %d: %w", id, err)
	}
	return confirmations, nil
}

func (r *postgresSubmissionRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.SubmissionStatus, rejectionReason *string) error {
	query := `
		UPDATE score_submissions
		SET status = $2, rejection_reason = $3, resolved_at = NOW()
		WHERE id = $1`

	result, err := exec.ExecContext(ctx, query, id, status, rejectionReason)
	if err != nil {
		return fmt.Errorf("failed to update submission %d status: %w", id, err)
	}
	return checkAffectedRows(result, ErrSubmissionNotFound)
}

func (r *postgresSubmissionRepository) ListByMatch(ctx context.Context, matchID int) ([]*models.ScoreSubmission, error) {
	query := `SELECT` + submissionColumns + `
		FROM score_submissions
		WHERE match_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions for match %d: %w", matchID, err)
	}
	defer rows.Close()

	submissions := make([]*models.ScoreSubmission, 0)
	for rows.Next() {
		submission, scanErr := scanSubmission(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan submission row: %w", scanErr)
		}
		submissions = append(submissions, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating submission rows: %w", err)
	}
	return submissions, nil
}
