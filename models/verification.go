package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// VerificationStatus — статус верификации результата матча.
// disputed достижим только из pending/confirmed, никогда из final.
type VerificationStatus string

const (
	VerificationPending   VerificationStatus = "pending"
	VerificationConfirmed VerificationStatus = "confirmed"
	VerificationDisputed  VerificationStatus = "disputed"
	VerificationFinal     VerificationStatus = "final"
)

type ScoreEntryMode string

const (
	EntryModeAnyPlayer     ScoreEntryMode = "any_player"
	EntryModeOrganizerOnly ScoreEntryMode = "organizer_only"
)

type VerificationMethod string

const (
	MethodOneOpponent VerificationMethod = "one_opponent"
	MethodMajority    VerificationMethod = "majority"
	MethodOrganizer   VerificationMethod = "organizer"
)

// VerificationSettings — политика верификации, неизменяемая на уровне
// соревнования. Сервисы её только читают.
type VerificationSettings struct {
	EntryMode         ScoreEntryMode     `json:"entry_mode"`
	Method            VerificationMethod `json:"method"`
	AutoFinalizeHours int                `json:"auto_finalize_hours"`
	DisputesAllowed   bool               `json:"disputes_allowed"`
}

// RequiredConfirmations выводит порог подтверждений из политики и состава
// противоположной стороны. Значение всегда вычисляется заново, а не читается
// из сохранённого поля, чтобы смена политики не расходилась с данными.
// Правило: one_opponent — одно подтверждение независимо от состава;
// majority — большинство участников противоположной стороны (1 для одиночек,
// 2 для пары); organizer — подтверждений от игроков не требуется.
func (s VerificationSettings) RequiredConfirmations(opposingMembers int) int {
	switch s.Method {
	case MethodOrganizer:
		return 0
	case MethodMajority:
		if opposingMembers <= 1 {
			return 1
		}
		return opposingMembers/2 + 1
	default:
		return 1
	}
}

type DisputeInfo struct {
	DisputedBy int64     `json:"disputed_by"`
	Reason     string    `json:"reason"`
	Notes      string    `json:"notes,omitempty"`
	DisputedAt time.Time `json:"disputed_at"`
}

type FinalizationInfo struct {
	FinalizedBy   *int64    `json:"finalized_by,omitempty"`
	FinalizedAt   time.Time `json:"finalized_at"`
	AutoFinalized bool      `json:"auto_finalized"`
}

// MatchVerificationData встроена в запись матча (JSONB). Авторитетное
// множество подтверждений живёт на открытой заявке; здесь — зеркало для
// чтения плюс метаданные спора и финализации.
type MatchVerificationData struct {
	Status                VerificationStatus `json:"status"`
	ConfirmedBy           []int64            `json:"confirmed_by,omitempty"`
	RequiredConfirmations int                `json:"required_confirmations"`
	Dispute               *DisputeInfo       `json:"dispute,omitempty"`
	Finalization          *FinalizationInfo  `json:"finalization,omitempty"`
}

func (v MatchVerificationData) Value() (driver.Value, error) {
	return json.Marshal(v)
}

func (v *MatchVerificationData) Scan(src interface{}) error {
	if src == nil {
		*v = MatchVerificationData{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into MatchVerificationData", src)
	}
	return json.Unmarshal(b, v)
}
