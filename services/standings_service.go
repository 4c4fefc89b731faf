package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/courtflow/pickleball-system/models"
	"github.com/courtflow/pickleball-system/repositories"
)

// StandingsService пересчитывает таблицу пула по завершённым матчам.
// UpdatePoolResultsOnMatchComplete — строго best-effort: любой внутренний
// сбой (включая панику) гасится и логируется, потому что таблица — производная
// read-оптимизация, а авторитетны записи матчей. Сбой здесь никогда не мешает
// завершению матча и продвижению по сетке.
type StandingsService interface {
	UpdatePoolResultsOnMatchComplete(ctx context.Context, competitionID, divisionID int, completedMatch *models.Match)
	GetPoolStandings(ctx context.Context, divisionID int, poolName string) ([]*models.PoolStanding, error)
	GetDivisionStandings(ctx context.Context, divisionID int) ([]*models.PoolStanding, error)
}

type standingsService struct {
	txm          repositories.TxManager
	matchRepo    repositories.MatchRepository
	standingRepo repositories.StandingRepository
}

func NewStandingsService(
	txm repositories.TxManager,
	matchRepo repositories.MatchRepository,
	standingRepo repositories.StandingRepository,
) StandingsService {
	return &standingsService{txm: txm, matchRepo: matchRepo, standingRepo: standingRepo}
}

func (s *standingsService) UpdatePoolResultsOnMatchComplete(ctx context.Context, competitionID, divisionID int, completedMatch *models.Match) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("Pool standings recompute panicked for division %d match %d: %v", divisionID, completedMatch.ID, p)
		}
	}()

	if completedMatch.Stage != models.StagePool || completedMatch.PoolName == nil {
		return
	}
	poolName := *completedMatch.PoolName

	if err := s.recomputePool(ctx, competitionID, divisionID, poolName); err != nil {
		// Проглатываем после логирования: ретрай возможен при следующем
		// завершении матча в этом пуле.
		log.Printf("Pool standings recompute failed for division %d pool %q (match %d): %v",
			divisionID, poolName, completedMatch.ID, err)
	}
}

func (s *standingsService) recomputePool(ctx context.Context, competitionID, divisionID int, poolName string) error {
	matches, err := s.matchRepo.ListCompletedPoolMatches(ctx, divisionID, poolName)
	if err != nil {
		return fmt.Errorf("failed to list completed pool matches: %w", err)
	}

	rows := computePoolTable(competitionID, divisionID, poolName, matches)

	return s.txm.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		return s.standingRepo.ReplacePool(ctx, exec, divisionID, poolName, rows)
	})
}

// computePoolTable строит строки таблицы из завершённых матчей пула.
// Ранжирование: победы, затем разница очков, затем набранные очки.
func computePoolTable(competitionID, divisionID int, poolName string, matches []*models.Match) []*models.PoolStanding {
	bySide := make(map[int]*models.PoolStanding)
	order := make([]int, 0)

	touch := func(side *models.Side) *models.PoolStanding {
		if row, ok := bySide[side.ID]; ok {
			return row
		}
		row := &models.PoolStanding{
			CompetitionID: competitionID,
			DivisionID:    divisionID,
			PoolName:      poolName,
			SideID:        side.ID,
			SideName:      side.Name,
		}
		bySide[side.ID] = row
		order = append(order, side.ID)
		return row
	}

	for _, m := range matches {
		if m.SideA == nil || m.SideB == nil || m.WinnerSideID == nil {
			continue
		}
		rowA := touch(m.SideA)
		rowB := touch(m.SideB)

		var pointsA, pointsB int
		for _, g := range m.Games {
			pointsA += g.ScoreA
			pointsB += g.ScoreB
		}

		rowA.GamesPlayed++
		rowB.GamesPlayed++
		rowA.PointsFor += pointsA
		rowA.PointsAgainst += pointsB
		rowB.PointsFor += pointsB
		rowB.PointsAgainst += pointsA

		if *m.WinnerSideID == m.SideA.ID {
			rowA.Wins++
			rowB.Losses++
		} else {
			rowB.Wins++
			rowA.Losses++
		}
	}

	rows := make([]*models.PoolStanding, 0, len(order))
	for _, sideID := range order {
		row := bySide[sideID]
		row.PointsDiff = row.PointsFor - row.PointsAgainst
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Wins != rows[j].Wins {
			return rows[i].Wins > rows[j].Wins
		}
		if rows[i].PointsDiff != rows[j].PointsDiff {
			return rows[i].PointsDiff > rows[j].PointsDiff
		}
		return rows[i].PointsFor > rows[j].PointsFor
	})
	for i, row := range rows {
		rank := i + 1
		row.Rank = &rank
	}
	return rows
}

func (s *standingsService) GetPoolStandings(ctx context.Context, divisionID int, poolName string) ([]*models.PoolStanding, error) {
	standings, err := s.standingRepo.ListByPool(ctx, divisionID, poolName)
	if err != nil {
		if errors.Is(err, repositories.ErrStandingNotFound) {
			return []*models.PoolStanding{}, nil
		}
		return nil, fmt.Errorf("failed to list standings for division %d pool %q: %w", divisionID, poolName, err)
	}
	return standings, nil
}

func (s *standingsService) GetDivisionStandings(ctx context.Context, divisionID int) ([]*models.PoolStanding, error) {
	standings, err := s.standingRepo.ListByDivision(ctx, divisionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list standings for division %d: %w", divisionID, err)
	}
	return standings, nil
}
