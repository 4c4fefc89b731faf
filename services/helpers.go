package services

import (
	"errors"
	"log"

	"github.com/courtflow/pickleball-system/models"
	"github.com/courtflow/pickleball-system/storage"
)

// logAdvancementFailure логирует сбой продвижения с контекстом для ручного
// восстановления (id матча, цель, роль) и уведомляет организатора о
// нарушении консистентности. Никогда не пробрасывает ошибку дальше.
func logAdvancementFailure(notifier Notifier, match *models.Match, err error, role string) {
	targetID := 0
	if role == "winner" && match.NextMatchID != nil {
		targetID = *match.NextMatchID
	}
	if role == "loser" && match.LoserNextMatchID != nil {
		targetID = *match.LoserNextMatchID
	}
	log.Printf("Bracket advancement (%s) failed for match %d -> match %d: %v", role, match.ID, targetID, err)
	if errors.Is(err, ErrConsistencyViolation) {
		notifier.ConsistencyViolation(match, err)
	}
}

// --- Хелперы для заполнения URL логотипов ---

func populateSideLogoURL(side *models.Side, uploader storage.FileUploader) {
	if side != nil && side.LogoKey != nil && *side.LogoKey != "" && uploader != nil {
		url := uploader.GetPublicURL(*side.LogoKey)
		if url != "" {
			side.LogoURL = &url
		}
	}
}

func populateMatchLogoURLs(match *models.Match, uploader storage.FileUploader) {
	if match == nil {
		return
	}
	populateSideLogoURL(match.SideA, uploader)
	populateSideLogoURL(match.SideB, uploader)
}

