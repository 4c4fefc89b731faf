package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/courtflow/pickleball-system/models"
)

var (
	ErrCompetitionNotFound = errors.New("competition not found")
	ErrDivisionNotFound    = errors.New("division not found")
)

type CompetitionRepository interface {
	GetByID(ctx context.Context, id int) (*models.Competition, error)
	GetDivision(ctx context.Context, id int) (*models.Division, error)
	ListDivisions(ctx context.Context, competitionID int) ([]*models.Division, error)
}

type postgresCompetitionRepository struct {
	db *sql.DB
}

func NewPostgresCompetitionRepository(db *sql.DB) CompetitionRepository {
	return &postgresCompetitionRepository{db: db}
}

func (r *postgresCompetitionRepository) GetByID(ctx context.Context, id int) (*models.Competition, error) {
	query := `
		SELECT id, club_id, name, kind, organizer_id, status, start_date, end_date,
		       verification, logo_key, created_at
		FROM competitions
		WHERE id = $1`

	c := &models.Competition{}
	var verificationRaw []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID,
		&c.ClubID,
		&c.Name,
		&c.Kind,
		&c.OrganizerID,
		&c.Status,
		&c.StartDate,
		&c.EndDate,
		&verificationRaw,
		&c.LogoKey,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCompetitionNotFound
		}
		return nil, fmt.Errorf("failed to scan competition by id %d: %w", id, err)
	}

	// Политика верификации хранится как JSONB вместе с соревнованием.
	if verificationRaw != nil {
		if err := json.Unmarshal(verificationRaw, &c.Verification); err != nil {
			return nil, fmt.Errorf("failed to decode verification settings for competition %d: %w", id, err)
		}
	}
	return c, nil
}

func (r *postgresCompetitionRepository) GetDivision(ctx context.Context, id int) (*models.Division, error) {
	query := `
		SELECT id, competition_id, name, team_size, max_teams
		FROM divisions
		WHERE id = $1`

	d := &models.Division{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&d.ID,
		&d.CompetitionID,
		&d.Name,
		&d.TeamSize,
		&d.MaxTeams,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDivisionNotFound
		}
		return nil, fmt.Errorf("failed to scan division by id %d: %w", id, err)
	}
	return d, nil
}

func (r *postgresCompetitionRepository) ListDivisions(ctx context.Context, competitionID int) ([]*models.Division, error) {
	query := `
		SELECT id, competition_id, name, team_size, max_teams
		FROM divisions
		WHERE competition_id = $1
		ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query, competitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query divisions for competition %d: %w", competitionID, err)
	}
	defer rows.Close()

	divisions := make([]*models.Division, 0)
	for rows.Next() {
		d := &models.Division{}
		if scanErr := rows.Scan(&d.ID, &d.CompetitionID, &d.Name, &d.TeamSize, &d.MaxTeams); scanErr != nil {
			return nil, fmt.Errorf("failed to scan division row: %w", scanErr)
		}
		divisions = append(divisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating division rows: %w", err)
	}
	return divisions, nil
}
