package services

import (
	"fmt"

	"github.com/courtflow/pickleball-system/models"
)

// maxGamesPerMatch ограничивает длину серии на границе: best-of-5 — максимум
// для форматов, которые поддерживает движок.
const maxGamesPerMatch = 5

// EvaluatedResult — результат оценки заявки счёта. Побочных эффектов нет.
type EvaluatedResult struct {
	WinnerSideID int
	GamesWonA    int
	GamesWonB    int
}

// EvaluateScore проверяет по-геймовый счёт и выводит победителя по числу
// выигранных геймов. Счёт первого гейма не определяет победителя: в best-of-3
// сторона может проиграть первый гейм и выиграть матч.
func EvaluateScore(games models.GameScores, sideAID, sideBID int) (*EvaluatedResult, error) {
	if len(games) == 0 {
		return nil, fmt.Errorf("%w: at least one game is required", ErrInvalidScore)
	}
	if len(games) > maxGamesPerMatch {
		return nil, fmt.Errorf("%w: at most %d games are allowed", ErrInvalidScore, maxGamesPerMatch)
	}

	result := &EvaluatedResult{}
	for i, g := range games {
		if g.ScoreA < 0 || g.ScoreB < 0 {
			return nil, fmt.Errorf("%w: game %d has a negative score", ErrInvalidScore, i+1)
		}
		if g.ScoreA == g.ScoreB {
			return nil, fmt.Errorf("%w: game %d ended level at %d-%d", ErrInvalidScore, i+1, g.ScoreA, g.ScoreB)
		}
		if g.ScoreA > g.ScoreB {
			result.GamesWonA++
		} else {
			result.GamesWonB++
		}
	}

	if result.GamesWonA == result.GamesWonB {
		return nil, fmt.Errorf("%w: %d games each", ErrTiedResult, result.GamesWonA)
	}
	if result.GamesWonA > result.GamesWonB {
		result.WinnerSideID = sideAID
	} else {
		result.WinnerSideID = sideBID
	}
	return result, nil
}

// normalizeGameNumbers проставляет порядковые номера геймов, не доверяя
// номерам из пользовательского ввода.
func normalizeGameNumbers(games models.GameScores) models.GameScores {
	normalized := make(models.GameScores, len(games))
	for i, g := range games {
		normalized[i] = models.GameScore{GameNumber: i + 1, ScoreA: g.ScoreA, ScoreB: g.ScoreB}
	}
	return normalized
}
