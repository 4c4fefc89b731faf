package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/courtflow/pickleball-system/models"
	"github.com/courtflow/pickleball-system/repositories"
	"github.com/google/uuid"
)

// LiveBroadcaster доставляет события матчей подключённым клиентам.
// Реализуется brackets.Hub; доставка best-effort.
type LiveBroadcaster interface {
	BroadcastToRoom(roomID string, message interface{})
}

type SubmitScoreInput struct {
	MatchID     int
	SubmitterID int64
	Games       models.GameScores
	IsOrganizer bool
}

type DisputeInput struct {
	MatchID int
	UserID  int64
	Reason  string
	Notes   string
}

// VerificationService владеет жизненным циклом верификации результата:
// propose -> acknowledge/dispute -> finalize. Запись матча — единственный
// источник истины; каждый переход перечитывает её статус внутри транзакции.
type VerificationService interface {
	SubmitScore(ctx context.Context, input SubmitScoreInput) (*models.Match, error)
	ConfirmScore(ctx context.Context, matchID int, userID int64) (*models.Match, error)
	DisputeScore(ctx context.Context, input DisputeInput) (*models.Match, error)
	// EscalateIfOverdue — ленивая временная эскалация: вызывается при чтении
	// матча, постоянного планировщика нет. Возвращает актуальный матч.
	EscalateIfOverdue(ctx context.Context, matchID int) (*models.Match, error)
}

type verificationService struct {
	txm             repositories.TxManager
	matchRepo       repositories.MatchRepository
	submissionRepo  repositories.SubmissionRepository
	competitionRepo repositories.CompetitionRepository
	advancement     AdvancementService
	standings       StandingsService
	notifier        Notifier
	hub             LiveBroadcaster
	now             func() time.Time
}

func NewVerificationService(
	txm repositories.TxManager,
	matchRepo repositories.MatchRepository,
	submissionRepo repositories.SubmissionRepository,
	competitionRepo repositories.CompetitionRepository,
	advancement AdvancementService,
	standings StandingsService,
	notifier Notifier,
	hub LiveBroadcaster,
) VerificationService {
	return &verificationService{
		txm:             txm,
		matchRepo:       matchRepo,
		submissionRepo:  submissionRepo,
		competitionRepo: competitionRepo,
		advancement:     advancement,
		standings:       standings,
		notifier:        notifier,
		hub:             hub,
		now:             time.Now,
	}
}

func (s *verificationService) SubmitScore(ctx context.Context, input SubmitScoreInput) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, input.MatchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}

	competition, err := s.competitionRepo.GetByID(ctx, match.CompetitionID)
	if err != nil {
		if errors.Is(err, repositories.ErrCompetitionNotFound) {
			return nil, ErrCompetitionNotFound
		}
		return nil, err
	}
	settings := competition.Verification

	if settings.EntryMode == models.EntryModeOrganizerOnly && !input.IsOrganizer {
		return nil, fmt.Errorf("%w: score entry is restricted to organizers", ErrUnauthorized)
	}
	if match.SideA == nil || match.SideB == nil {
		return nil, fmt.Errorf("%w: both sides must be resolved before a score can be submitted", ErrMatchNotPlayable)
	}
	if !input.IsOrganizer && !match.SideA.HasMember(input.SubmitterID) && !match.SideB.HasMember(input.SubmitterID) {
		return nil, fmt.Errorf("%w: submitter is not a member of either side", ErrUnauthorized)
	}

	// Валидация и вывод победителя до каких-либо записей.
	games := normalizeGameNumbers(input.Games)
	evaluated, err := EvaluateScore(games, match.SideA.ID, match.SideB.ID)
	if err != nil {
		return nil, err
	}

	// Организатор с мгновенными полномочиями минует pending целиком.
	instantFinal := input.IsOrganizer &&
		(settings.EntryMode == models.EntryModeOrganizerOnly || settings.Method == models.MethodOrganizer)

	var updated *models.Match
	txErr := s.txm.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		// Статус перечитывается под блокировкой: конкурирующая заявка или
		// завершение, случившиеся после внешнего чтения, видны здесь.
		current, err := s.matchRepo.GetByIDForUpdate(ctx, exec, input.MatchID)
		if err != nil {
			return err
		}
		switch current.Status {
		case models.MatchStatusCompleted:
			return ErrAlreadyFinal
		case models.MatchStatusDisputed:
			return fmt.Errorf("%w: match is disputed and awaits organizer resolution", ErrMatchNotPlayable)
		case models.MatchStatusCancelled:
			return fmt.Errorf("%w: match is cancelled", ErrMatchNotPlayable)
		case models.MatchStatusPendingConfirmation:
			// Ровно одна открытая заявка на матч.
			return ErrDuplicateSubmission
		}

		submission := &models.ScoreSubmission{
			UID:          uuid.NewString(),
			MatchID:      current.ID,
			SubmitterID:  input.SubmitterID,
			SideAID:      current.SideA.ID,
			SideBID:      current.SideB.ID,
			Games:        games,
			WinnerSideID: evaluated.WinnerSideID,
			Status:       models.SubmissionPendingOpponent,
			Confirmations: []int64{},
		}

		division, err := s.competitionRepo.GetDivision(ctx, current.DivisionID)
		if err != nil {
			return err
		}
		required := settings.RequiredConfirmations(division.TeamSize)

		if instantFinal {
			submission.Status = models.SubmissionConfirmed
			if err := s.submissionRepo.Create(ctx, exec, submission); err != nil {
				return mapSubmissionRepoError(err)
			}
			verification := &models.MatchVerificationData{
				Status:                models.VerificationFinal,
				RequiredConfirmations: required,
				Finalization: &models.FinalizationInfo{
					FinalizedBy:   &input.SubmitterID,
					FinalizedAt:   s.now(),
					AutoFinalized: false,
				},
			}
			winnerID := evaluated.WinnerSideID
			if err := s.matchRepo.UpdateResult(ctx, exec, current.ID, games, models.MatchStatusCompleted, &winnerID, verification); err != nil {
				return err
			}
		} else {
			if err := s.submissionRepo.Create(ctx, exec, submission); err != nil {
				return mapSubmissionRepoError(err)
			}
			verification := &models.MatchVerificationData{
				Status:                models.VerificationPending,
				RequiredConfirmations: required,
			}
			winnerID := evaluated.WinnerSideID
			if err := s.matchRepo.UpdateResult(ctx, exec, current.ID, games, models.MatchStatusPendingConfirmation, &winnerID, verification); err != nil {
				return err
			}
		}

		updated, err = s.matchRepo.GetByIDForUpdate(ctx, exec, current.ID)
		return err
	})
	if txErr != nil {
		return nil, txErr
	}

	if instantFinal {
		// Вторичные эффекты идут после коммита завершения и не могут его откатить.
		s.runPostFinalization(ctx, updated)
	} else {
		s.hub.BroadcastToRoom(roomForCompetition(updated.CompetitionID), MatchEvent{Type: "MATCH_UPDATED", Match: updated})
		s.notifier.ScoreSubmitted(updated, input.SubmitterID)
	}
	return updated, nil
}

func (s *verificationService) ConfirmScore(ctx context.Context, matchID int, userID int64) (*models.Match, error) {
	settings, division, err := s.loadPolicy(ctx, matchID)
	if err != nil {
		return nil, err
	}

	var updated *models.Match
	finalized := false
	txErr := s.txm.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		current, err := s.matchRepo.GetByIDForUpdate(ctx, exec, matchID)
		if err != nil {
			if errors.Is(err, repositories.ErrMatchNotFound) {
				return ErrMatchNotFound
			}
			return err
		}
		switch current.Status {
		case models.MatchStatusCompleted:
			return ErrAlreadyFinal
		case models.MatchStatusDisputed:
			return fmt.Errorf("%w: match is disputed", ErrMatchNotPlayable)
		case models.MatchStatusScheduled, models.MatchStatusCancelled:
			return ErrSubmissionNotFound
		}

		submission, err := s.submissionRepo.GetOpenByMatch(ctx, exec, matchID)
		if err != nil {
			if errors.Is(err, repositories.ErrSubmissionNotFound) {
				return ErrSubmissionNotFound
			}
			return err
		}

		if !s.isEligibleConfirmer(current, submission.SubmitterID, userID) {
			return fmt.Errorf("%w: only members of the opposing side may acknowledge", ErrNotEligible)
		}

		// Атомарный add-to-set: повторное подтверждение — no-op, не ошибка.
		confirmations, err := s.submissionRepo.AddConfirmation(ctx, exec, submission.ID, userID)
		if err != nil {
			return err
		}

		required := settings.RequiredConfirmations(division.TeamSize)
		verification := &models.MatchVerificationData{
			Status:                models.VerificationPending,
			ConfirmedBy:           confirmations,
			RequiredConfirmations: required,
		}

		if len(confirmations) >= required {
			if err := s.submissionRepo.UpdateStatus(ctx, exec, submission.ID, models.SubmissionConfirmed, nil); err != nil {
				return err
			}
			verification.Status = models.VerificationFinal
			verification.Finalization = &models.FinalizationInfo{
				FinalizedBy:   &userID,
				FinalizedAt:   s.now(),
				AutoFinalized: false,
			}
			if err := s.matchRepo.UpdateVerification(ctx, exec, matchID, models.MatchStatusCompleted, verification, false); err != nil {
				return err
			}
			finalized = true
		} else {
			if err := s.matchRepo.UpdateVerification(ctx, exec, matchID, models.MatchStatusPendingConfirmation, verification, current.NeedsReview); err != nil {
				return err
			}
		}

		updated, err = s.matchRepo.GetByIDForUpdate(ctx, exec, matchID)
		return err
	})
	if txErr != nil {
		return nil, txErr
	}

	if finalized {
		s.runPostFinalization(ctx, updated)
	} else {
		s.hub.BroadcastToRoom(roomForCompetition(updated.CompetitionID), MatchEvent{Type: "MATCH_UPDATED", Match: updated})
	}
	return updated, nil
}

func (s *verificationService) DisputeScore(ctx context.Context, input DisputeInput) (*models.Match, error) {
	settings, _, err := s.loadPolicy(ctx, input.MatchID)
	if err != nil {
		return nil, err
	}
	if !settings.DisputesAllowed {
		return nil, ErrDisputesDisabled
	}

	var updated *models.Match
	txErr := s.txm.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		current, err := s.matchRepo.GetByIDForUpdate(ctx, exec, input.MatchID)
		if err != nil {
			if errors.Is(err, repositories.ErrMatchNotFound) {
				return ErrMatchNotFound
			}
			return err
		}
		switch current.Status {
		case models.MatchStatusCompleted:
			// Спор, пришедший после автофинализации, не открывает сетку заново.
			return ErrAlreadyFinal
		case models.MatchStatusDisputed:
			updated = current
			return nil
		case models.MatchStatusScheduled, models.MatchStatusCancelled:
			return ErrSubmissionNotFound
		}

		if !current.SideA.HasMember(input.UserID) && !current.SideB.HasMember(input.UserID) {
			return fmt.Errorf("%w: only match participants may dispute", ErrNotEligible)
		}

		submission, err := s.submissionRepo.GetOpenByMatch(ctx, exec, input.MatchID)
		if err != nil {
			if errors.Is(err, repositories.ErrSubmissionNotFound) {
				return ErrSubmissionNotFound
			}
			return err
		}

		reason := input.Reason
		if err := s.submissionRepo.UpdateStatus(ctx, exec, submission.ID, models.SubmissionRejected, &reason); err != nil {
			return err
		}

		verification := currentVerification(current)
		verification.Status = models.VerificationDisputed
		verification.Dispute = &models.DisputeInfo{
			DisputedBy: input.UserID,
			Reason:     input.Reason,
			Notes:      input.Notes,
			DisputedAt: s.now(),
		}
		if err := s.matchRepo.UpdateVerification(ctx, exec, input.MatchID, models.MatchStatusDisputed, verification, true); err != nil {
			return err
		}

		updated, err = s.matchRepo.GetByIDForUpdate(ctx, exec, input.MatchID)
		return err
	})
	if txErr != nil {
		return nil, txErr
	}

	s.hub.BroadcastToRoom(roomForCompetition(updated.CompetitionID), MatchEvent{Type: "MATCH_UPDATED", Match: updated})
	s.notifier.MatchDisputed(updated, input.UserID, input.Reason)
	return updated, nil
}

func (s *verificationService) EscalateIfOverdue(ctx context.Context, matchID int) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	if match.Status != models.MatchStatusPendingConfirmation {
		return match, nil
	}

	settings, division, err := s.loadPolicy(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if settings.AutoFinalizeHours <= 0 {
		return match, nil
	}

	var updated *models.Match
	finalized := false
	txErr := s.txm.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		current, err := s.matchRepo.GetByIDForUpdate(ctx, exec, matchID)
		if err != nil {
			return err
		}
		if current.Status != models.MatchStatusPendingConfirmation {
			updated = current
			return nil
		}

		submission, err := s.submissionRepo.GetOpenByMatch(ctx, exec, matchID)
		if err != nil {
			if errors.Is(err, repositories.ErrSubmissionNotFound) {
				updated = current
				return nil
			}
			return err
		}

		// Эскалируется только заявка без единого подтверждения и без спора.
		deadline := submission.CreatedAt.Add(time.Duration(settings.AutoFinalizeHours) * time.Hour)
		if len(submission.Confirmations) > 0 || s.now().Before(deadline) {
			updated = current
			return nil
		}

		if settings.EntryMode == models.EntryModeOrganizerOnly {
			// Повторное чтение уже помеченного матча ничего не пишет.
			if current.NeedsReview {
				updated = current
				return nil
			}
			// Вместо автофинализации матч помечается для ручной проверки.
			verification := currentVerification(current)
			if err := s.matchRepo.UpdateVerification(ctx, exec, matchID, current.Status, verification, true); err != nil {
				return err
			}
			updated, err = s.matchRepo.GetByIDForUpdate(ctx, exec, matchID)
			return err
		}

		if err := s.submissionRepo.UpdateStatus(ctx, exec, submission.ID, models.SubmissionConfirmed, nil); err != nil {
			return err
		}
		verification := currentVerification(current)
		verification.Status = models.VerificationFinal
		verification.RequiredConfirmations = settings.RequiredConfirmations(division.TeamSize)
		verification.Finalization = &models.FinalizationInfo{
			FinalizedAt:   s.now(),
			AutoFinalized: true,
		}
		if err := s.matchRepo.UpdateVerification(ctx, exec, matchID, models.MatchStatusCompleted, verification, false); err != nil {
			return err
		}
		finalized = true

		updated, err = s.matchRepo.GetByIDForUpdate(ctx, exec, matchID)
		return err
	})
	if txErr != nil {
		return nil, txErr
	}

	if finalized {
		log.Printf("Match %d auto-finalized after %dh without acknowledgement", matchID, settings.AutoFinalizeHours)
		s.runPostFinalization(ctx, updated)
	}
	return updated, nil
}

// isEligibleConfirmer: подтверждать может только участник стороны,
// противоположной отправителю; самоподтверждение запрещено. Если заявку внёс
// не играющий организатор, подтвердить может участник любой из сторон.
func (s *verificationService) isEligibleConfirmer(match *models.Match, submitterID, userID int64) bool {
	if userID == submitterID {
		return false
	}
	opposing := match.OpposingSide(submitterID)
	if opposing == nil {
		return match.SideA.HasMember(userID) || match.SideB.HasMember(userID)
	}
	return opposing.HasMember(userID)
}

func (s *verificationService) loadPolicy(ctx context.Context, matchID int) (models.VerificationSettings, *models.Division, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return models.VerificationSettings{}, nil, ErrMatchNotFound
		}
		return models.VerificationSettings{}, nil, err
	}
	competition, err := s.competitionRepo.GetByID(ctx, match.CompetitionID)
	if err != nil {
		if errors.Is(err, repositories.ErrCompetitionNotFound) {
			return models.VerificationSettings{}, nil, ErrCompetitionNotFound
		}
		return models.VerificationSettings{}, nil, err
	}
	division, err := s.competitionRepo.GetDivision(ctx, match.DivisionID)
	if err != nil {
		if errors.Is(err, repositories.ErrDivisionNotFound) {
			return models.VerificationSettings{}, nil, ErrDivisionNotFound
		}
		return models.VerificationSettings{}, nil, err
	}
	return competition.Verification, division, nil
}

// runPostFinalization выполняет вторичные эффекты завершения: продвижение по
// сетке, пересчёт таблицы пула, уведомления. Все они изолированы от записи
// завершения — их ошибки логируются и никогда не откатывают completed/final.
func (s *verificationService) runPostFinalization(ctx context.Context, match *models.Match) {
	if err := s.advancement.AdvanceWinner(ctx, match); err != nil {
		logAdvancementFailure(s.notifier, match, err, "winner")
	}
	if err := s.advancement.AdvanceLoser(ctx, match); err != nil {
		logAdvancementFailure(s.notifier, match, err, "loser")
	}

	if match.Stage == models.StagePool {
		// Best-effort: таблица пула — производная оптимизация чтения.
		s.standings.UpdatePoolResultsOnMatchComplete(ctx, match.CompetitionID, match.DivisionID, match)
	}

	s.hub.BroadcastToRoom(roomForCompetition(match.CompetitionID), MatchEvent{Type: "MATCH_FINALIZED", Match: match})
	s.notifier.MatchFinalized(match)
}

func currentVerification(match *models.Match) *models.MatchVerificationData {
	if match.Verification != nil {
		v := *match.Verification
		return &v
	}
	return &models.MatchVerificationData{Status: models.VerificationPending}
}

func mapSubmissionRepoError(err error) error {
	if errors.Is(err, repositories.ErrSubmissionConflict) {
		return ErrDuplicateSubmission
	}
	return err
}

// MatchEvent — полезная нагрузка широковещательных сообщений о матчах.
type MatchEvent struct {
	Type  string        `json:"type"`
	Match *models.Match `json:"match"`
}

func roomForCompetition(competitionID int) string {
	return fmt.Sprintf("competition:%d", competitionID)
}
