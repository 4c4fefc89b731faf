package services

import (
	"fmt"

	"github.com/courtflow/pickleball-system/models"
)

// ValidatePoolAssignment проверяет распределение команд по пулам дивизиона.
// Команда может входить не более чем в один пул; дубликат — жёсткая ошибка
// на этапе формирования, а не молчаливое исправление.
func ValidatePoolAssignment(assignment models.PoolAssignment) error {
	if len(assignment) == 0 {
		return ErrPoolEmpty
	}

	seen := make(map[int]string)
	for poolName, teamIDs := range assignment {
		if len(teamIDs) == 0 {
			return fmt.Errorf("%w: pool %q has no teams", ErrPoolEmpty, poolName)
		}
		for _, teamID := range teamIDs {
			if firstPool, ok := seen[teamID]; ok {
				return fmt.Errorf("%w: team %d appears in pools %q and %q", ErrPoolDuplicateTeam, teamID, firstPool, poolName)
			}
			seen[teamID] = poolName
		}
	}
	return nil
}
