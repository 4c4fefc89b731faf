package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/courtflow/pickleball-system/models"
	"github.com/courtflow/pickleball-system/repositories"
)

type DisputeAction string

const (
	DisputeActionFinalize DisputeAction = "finalize"
	DisputeActionEdit     DisputeAction = "edit"
	DisputeActionVoid     DisputeAction = "void"
)

var ErrInvalidDisputeAction = errors.New("invalid dispute resolution action")

type ResolveDisputeInput struct {
	MatchID     int
	OrganizerID int64
	IsOrganizer bool
	Action      DisputeAction
	NewGames    models.GameScores // только для edit
}

// DisputeService — организаторское разрешение спорных матчей: принять спорный
// счёт как есть, исправить его или аннулировать матч для переигровки.
type DisputeService interface {
	ResolveDispute(ctx context.Context, input ResolveDisputeInput) (*models.Match, error)
}

type disputeService struct {
	txm            repositories.TxManager
	matchRepo      repositories.MatchRepository
	submissionRepo repositories.SubmissionRepository
	advancement    AdvancementService
	standings      StandingsService
	notifier       Notifier
	hub            LiveBroadcaster
	now            func() time.Time
}

func NewDisputeService(
	txm repositories.TxManager,
	matchRepo repositories.MatchRepository,
	submissionRepo repositories.SubmissionRepository,
	advancement AdvancementService,
	standings StandingsService,
	notifier Notifier,
	hub LiveBroadcaster,
) DisputeService {
	return &disputeService{
		txm:            txm,
		matchRepo:      matchRepo,
		submissionRepo: submissionRepo,
		advancement:    advancement,
		standings:      standings,
		notifier:       notifier,
		hub:            hub,
		now:            time.Now,
	}
}

func (s *disputeService) ResolveDispute(ctx context.Context, input ResolveDisputeInput) (*models.Match, error) {
	if !input.IsOrganizer {
		return nil, fmt.Errorf("%w: only an organizer may resolve disputes", ErrUnauthorized)
	}

	var updated *models.Match
	finalized := false
	txErr := s.txm.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		current, err := s.matchRepo.GetByIDForUpdate(ctx, exec, input.MatchID)
		if err != nil {
			if errors.Is(err, repositories.ErrMatchNotFound) {
				return ErrMatchNotFound
			}
			return err
		}
		if current.Status != models.MatchStatusDisputed {
			if current.Status == models.MatchStatusCompleted {
				return ErrAlreadyFinal
			}
			return ErrMatchNotDisputed
		}

		switch input.Action {
		case DisputeActionFinalize:
			// Спорный счёт принимается как есть.
			if current.WinnerSideID == nil {
				return fmt.Errorf("disputed match %d has no recorded result to finalize", current.ID)
			}
			verification := currentVerification(current)
			verification.Status = models.VerificationFinal
			verification.Finalization = &models.FinalizationInfo{
				FinalizedBy: &input.OrganizerID,
				FinalizedAt: s.now(),
			}
			if err := s.matchRepo.UpdateVerification(ctx, exec, current.ID, models.MatchStatusCompleted, verification, false); err != nil {
				return err
			}
			finalized = true

		case DisputeActionEdit:
			games := normalizeGameNumbers(input.NewGames)
			evaluated, err := EvaluateScore(games, current.SideA.ID, current.SideB.ID)
			if err != nil {
				return err
			}
			verification := currentVerification(current)
			verification.Status = models.VerificationFinal
			verification.Finalization = &models.FinalizationInfo{
				FinalizedBy: &input.OrganizerID,
				FinalizedAt: s.now(),
			}
			winnerID := evaluated.WinnerSideID
			if err := s.matchRepo.UpdateResult(ctx, exec, current.ID, games, models.MatchStatusCompleted, &winnerID, verification); err != nil {
				return err
			}
			finalized = true

		case DisputeActionVoid:
			// Аннулирование — единственный путь назад по жизненному циклу:
			// матч возвращается в scheduled для переигровки, продвижение по
			// сетке не вызывается.
			if err := s.matchRepo.ResetToScheduled(ctx, exec, current.ID); err != nil {
				return err
			}

		default:
			return fmt.Errorf("%w: %q", ErrInvalidDisputeAction, input.Action)
		}

		updated, err = s.matchRepo.GetByIDForUpdate(ctx, exec, input.MatchID)
		return err
	})
	if txErr != nil {
		return nil, txErr
	}

	if finalized {
		s.runPostResolution(ctx, updated)
	} else {
		s.hub.BroadcastToRoom(roomForCompetition(updated.CompetitionID), MatchEvent{Type: "MATCH_UPDATED", Match: updated})
	}
	s.notifier.DisputeResolved(updated, input.OrganizerID, string(input.Action))
	return updated, nil
}

// runPostResolution повторяет вторичные эффекты обычной финализации;
// их ошибки изолированы от принятого решения организатора.
func (s *disputeService) runPostResolution(ctx context.Context, match *models.Match) {
	if err := s.advancement.AdvanceWinner(ctx, match); err != nil {
		logAdvancementFailure(s.notifier, match, err, "winner")
	}
	if err := s.advancement.AdvanceLoser(ctx, match); err != nil {
		logAdvancementFailure(s.notifier, match, err, "loser")
	}
	if match.Stage == models.StagePool {
		s.standings.UpdatePoolResultsOnMatchComplete(ctx, match.CompetitionID, match.DivisionID, match)
	}
	s.hub.BroadcastToRoom(roomForCompetition(match.CompetitionID), MatchEvent{Type: "MATCH_FINALIZED", Match: match})
}
