package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/courtflow/pickleball-system/models"
)

var ErrStandingNotFound = errors.New("pool standing not found")

type StandingRepository interface {
	// ReplacePool перезаписывает строки таблицы пула целиком: пересчёт
	// делается из завершённых матчей, частичные апдейты не нужны.
	ReplacePool(ctx context.Context, exec SQLExecutor, divisionID int, poolName string, rows []*models.PoolStanding) error
	ListByPool(ctx context.Context, divisionID int, poolName string) ([]*models.PoolStanding, error)
	ListByDivision(ctx context.Context, divisionID int) ([]*models.PoolStanding, error)
}

type postgresStandingRepository struct {
	db *sql.DB
}

func NewPostgresStandingRepository(db *sql.DB) StandingRepository {
	return &postgresStandingRepository{db: db}
}

func (r *postgresStandingRepository) ReplacePool(ctx context.Context, exec SQLExecutor, divisionID int, poolName string, rows []*models.PoolStanding) error {
	deleteQuery := `DELETE FROM pool_standings WHERE division_id = $1 AND pool_name = $2`
	if _, err := exec.ExecContext(ctx, deleteQuery, divisionID, poolName); err != nil {
		return fmt.Errorf("failed to clear pool standings for division %d pool %q: %w", divisionID, poolName, err)
	}

	insertQuery := `
		INSERT INTO pool_standings
			(competition_id, division_id, pool_name, side_id, side_name,
			 games_played, wins, losses, points_for, points_against, points_diff, rank, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		RETURNING id, updated_at`

	for _, row := range rows {
		err := exec.QueryRowContext(ctx, insertQuery,
			row.CompetitionID,
			row.DivisionID,
			row.PoolName,
			row.SideID,
			row.SideName,
			row.GamesPlayed,
			row.Wins,
			row.Losses,
			row.PointsFor,
			row.PointsAgainst,
			row.PointsDiff,
			row.Rank,
		).Scan(&row.ID, &row.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert pool standing for side %d: %w", row.SideID, err)
		}
	}
	return nil
}

const standingColumns = `
	id, competition_id, division_id, pool_name, side_id, side_name,
	games_played, wins, losses, points_for, points_against, points_diff, rank, updated_at`

func (r *postgresStandingRepository) ListByPool(ctx context.Context, divisionID int, poolName string) ([]*models.PoolStanding, error) {
	query := `SELECT` + standingColumns + `
		FROM pool_standings
		WHERE division_id = $1 AND pool_name = $2
		ORDER BY rank ASC NULLS LAST, wins DESC, points_diff DESC`

	return r.queryStandings(ctx, query, divisionID, poolName)
}

func (r *postgresStandingRepository) ListByDivision(ctx context.Context, divisionID int) ([]*models.PoolStanding, error) {
	query := `SELECT` + standingColumns + `
		FROM pool_standings
		WHERE division_id = $1
		ORDER BY pool_name ASC, rank ASC NULLS LAST, wins DESC, points_diff DESC`

	return r.queryStandings(ctx, query, divisionID)
}

func (r *postgresStandingRepository) queryStandings(ctx context.Context, query string, args ...interface{}) ([]*models.PoolStanding, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pool standings: %w", err)
	}
	defer rows.Close()

	standings := make([]*models.PoolStanding, 0)
	for rows.Next() {
		s := &models.PoolStanding{}
		if scanErr := rows.Scan(
			&s.ID,
			&s.CompetitionID,
			&s.DivisionID,
			&s.PoolName,
			&s.SideID,
			&s.SideName,
			&s.GamesPlayed,
			&s.Wins,
			&s.Losses,
			&s.PointsFor,
			&s.PointsAgainst,
			&s.PointsDiff,
			&s.Rank,
			&s.UpdatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan pool standing row: %w", scanErr)
		}
		standings = append(standings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pool standing rows: %w", err)
	}
	return standings, nil
}
