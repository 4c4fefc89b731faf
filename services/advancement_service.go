package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/courtflow/pickleball-system/models"
	"github.com/courtflow/pickleball-system/repositories"
)

// AdvancementService переносит стороны завершённого матча в нижестоящие
// матчи сетки: победителя в next_match, проигравшего в loser_next_match
// (бронза/утешительная сетка). Вызывается только после final/completed и
// в отдельной транзакции от записи завершения: сбой продвижения не
// откатывает завершённый матч.
type AdvancementService interface {
	AdvanceWinner(ctx context.Context, match *models.Match) error
	AdvanceLoser(ctx context.Context, match *models.Match) error
}

type advancementService struct {
	txm       repositories.TxManager
	matchRepo repositories.MatchRepository
}

func NewAdvancementService(txm repositories.TxManager, matchRepo repositories.MatchRepository) AdvancementService {
	return &advancementService{txm: txm, matchRepo: matchRepo}
}

func (s *advancementService) AdvanceWinner(ctx context.Context, match *models.Match) error {
	if match.NextMatchID == nil {
		return nil // терминальный матч
	}
	if match.WinnerSideID == nil {
		return fmt.Errorf("match %d has no winner to advance", match.ID)
	}
	side := match.SideByID(*match.WinnerSideID)
	if side == nil {
		return fmt.Errorf("winner side %d is not a side of match %d", *match.WinnerSideID, match.ID)
	}
	return s.fillDownstreamSlot(ctx, match.ID, *match.NextMatchID, match.NextMatchSlot, side)
}

func (s *advancementService) AdvanceLoser(ctx context.Context, match *models.Match) error {
	if match.LoserNextMatchID == nil {
		return nil
	}
	loserID := match.LoserSideID()
	if loserID == nil {
		return fmt.Errorf("match %d has no loser to advance", match.ID)
	}
	side := match.SideByID(*loserID)
	return s.fillDownstreamSlot(ctx, match.ID, *match.LoserNextMatchID, match.LoserNextMatchSlot, side)
}

// fillDownstreamSlot разрешает целевой слот и записывает в него сторону.
// Явный слот имеет приоритет; иначе берётся первый незанятый (TBD) слот
// нижестоящего матча. Если оба слота заняты чужими сторонами — это нарушение
// консистентности: логируем и прерываем, ничего не перезаписывая.
func (s *advancementService) fillDownstreamSlot(ctx context.Context, sourceMatchID, targetMatchID int, explicitSlot *models.MatchSlot, side *models.Side) error {
	return s.txm.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		target, err := s.matchRepo.GetByIDForUpdate(ctx, exec, targetMatchID)
		if err != nil {
			if errors.Is(err, repositories.ErrMatchNotFound) {
				// Неполная разводка сетки: ссылка есть, матча нет.
				return fmt.Errorf("downstream match %d referenced by match %d does not exist: %w", targetMatchID, sourceMatchID, err)
			}
			return err
		}

		slot, err := resolveTargetSlot(target, explicitSlot, side)
		if err != nil {
			return err
		}
		if slot == "" {
			// Слот уже корректно заполнен этой же стороной: повторное
			// продвижение — no-op.
			log.Printf("Advancement no-op: match %d already holds side %d from match %d", targetMatchID, side.ID, sourceMatchID)
			return nil
		}

		if err := s.matchRepo.FillSlot(ctx, exec, targetMatchID, slot, side); err != nil {
			if errors.Is(err, repositories.ErrMatchSlotOccupied) {
				return fmt.Errorf("%w: match %d slot %s (advancing from match %d)", ErrConsistencyViolation, targetMatchID, slot, sourceMatchID)
			}
			return err
		}
		log.Printf("Advanced side %d (%s) from match %d into match %d slot %s", side.ID, side.Name, sourceMatchID, targetMatchID, slot)
		return nil
	})
}

// resolveTargetSlot выбирает слот для записи. Пустая строка означает, что
// запись не нужна (идемпотентный повтор).
func resolveTargetSlot(target *models.Match, explicitSlot *models.MatchSlot, side *models.Side) (models.MatchSlot, error) {
	// Уже продвинутая сторона не дублируется и не переезжает.
	if target.SideA != nil && target.SideA.ID == side.ID {
		return "", nil
	}
	if target.SideB != nil && target.SideB.ID == side.ID {
		return "", nil
	}

	if explicitSlot != nil {
		occupied := target.SideForSlot(*explicitSlot)
		if occupied != nil {
			return "", fmt.Errorf("%w: match %d slot %s is held by side %d", ErrConsistencyViolation, target.ID, *explicitSlot, occupied.ID)
		}
		return *explicitSlot, nil
	}

	// Без явного слота — первый незаполненный.
	if target.SideA == nil {
		return models.SlotA, nil
	}
	if target.SideB == nil {
		return models.SlotB, nil
	}
	return "", fmt.Errorf("%w: match %d has both slots filled (sides %d and %d)", ErrConsistencyViolation, target.ID, target.SideA.ID, target.SideB.ID)
}
