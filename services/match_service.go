package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/courtflow/pickleball-system/models"
	"github.com/courtflow/pickleball-system/repositories"
	"github.com/courtflow/pickleball-system/storage"
	"golang.org/x/sync/errgroup"
)

// ErrMatchesListFailed - общая ошибка для листинга матчей
var ErrMatchesListFailed = errors.New("failed to list matches")

// MatchDetail — агрегированное представление матча для клиента: сам матч,
// история заявок и нижестоящие матчи сетки.
type MatchDetail struct {
	Match       *models.Match            `json:"match"`
	Submissions []*models.ScoreSubmission `json:"submissions"`
	NextMatch   *models.Match            `json:"next_match,omitempty"`
	LoserNext   *models.Match            `json:"loser_next_match,omitempty"`
}

type MatchService interface {
	// GetMatchDetail отдаёт матч с заявками и нижестоящими матчами.
	// Перед чтением лениво применяется временная эскалация.
	GetMatchDetail(ctx context.Context, matchID int) (*MatchDetail, error)
	ListByDivision(ctx context.Context, divisionID int, stage *models.MatchStage, status *models.MatchStatus) ([]*models.Match, error)
}

type matchService struct {
	matchRepo      repositories.MatchRepository
	submissionRepo repositories.SubmissionRepository
	verification   VerificationService
	uploader       storage.FileUploader
}

func NewMatchService(
	matchRepo repositories.MatchRepository,
	submissionRepo repositories.SubmissionRepository,
	verification VerificationService,
	uploader storage.FileUploader,
) MatchService {
	return &matchService{
		matchRepo:      matchRepo,
		submissionRepo: submissionRepo,
		verification:   verification,
		uploader:       uploader,
	}
}

func (s *matchService) GetMatchDetail(ctx context.Context, matchID int) (*MatchDetail, error) {
	// Ленивая проверка эскалации: постоянного планировщика нет, просроченные
	// заявки финализируются при очередном чтении.
	match, err := s.verification.EscalateIfOverdue(ctx, matchID)
	if err != nil {
		return nil, err
	}

	detail := &MatchDetail{Match: match}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		submissions, err := s.submissionRepo.ListByMatch(gCtx, matchID)
		if err != nil {
			return fmt.Errorf("failed to fetch submissions for match %d: %w", matchID, err)
		}
		detail.Submissions = submissions
		return nil
	})

	if match.NextMatchID != nil {
		nextID := *match.NextMatchID
		g.Go(func() error {
			next, err := s.matchRepo.GetByID(gCtx, nextID)
			if err != nil {
				// Неполная разводка сетки не мешает отдать сам матч.
				log.Printf("Failed to fetch next match %d for match %d: %v", nextID, matchID, err)
				return nil
			}
			detail.NextMatch = next
			return nil
		})
	}
	if match.LoserNextMatchID != nil {
		loserNextID := *match.LoserNextMatchID
		g.Go(func() error {
			loserNext, err := s.matchRepo.GetByID(gCtx, loserNextID)
			if err != nil {
				log.Printf("Failed to fetch loser next match %d for match %d: %v", loserNextID, matchID, err)
				return nil
			}
			detail.LoserNext = loserNext
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	populateMatchLogoURLs(detail.Match, s.uploader)
	populateMatchLogoURLs(detail.NextMatch, s.uploader)
	populateMatchLogoURLs(detail.LoserNext, s.uploader)
	return detail, nil
}

func (s *matchService) ListByDivision(ctx context.Context, divisionID int, stage *models.MatchStage, status *models.MatchStatus) ([]*models.Match, error) {
	matches, err := s.matchRepo.ListByDivision(ctx, divisionID, stage, status)
	if err != nil {
		return nil, fmt.Errorf("%w: division %d: %w", ErrMatchesListFailed, divisionID, err)
	}
	if matches == nil {
		return []*models.Match{}, nil
	}
	for _, m := range matches {
		populateMatchLogoURLs(m, s.uploader)
	}
	return matches, nil
}
