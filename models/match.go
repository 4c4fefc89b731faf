package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type MatchStatus string

const (
	MatchStatusScheduled           MatchStatus = "scheduled"
	MatchStatusPendingConfirmation MatchStatus = "pending_confirmation"
	MatchStatusCompleted           MatchStatus = "completed"
	MatchStatusDisputed            MatchStatus = "disputed"
	MatchStatusCancelled           MatchStatus = "cancelled"
)

type MatchStage string

const (
	StagePool        MatchStage = "pool"
	StageBracket     MatchStage = "bracket"
	StageFinals      MatchStage = "finals"
	StageConsolation MatchStage = "consolation"
)

// Слоты следующего матча, которые заполняет продвижение по сетке.
type MatchSlot string

const (
	SlotA MatchSlot = "A"
	SlotB MatchSlot = "B"
)

// Side — одна из двух сторон матча (игрок, пара или команда).
// Nil-сторона означает TBD: слот ещё не заполнен предыдущим матчем.
type Side struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	MemberIDs []int64 `json:"member_ids"`
	LogoKey   *string `json:"-"`
	LogoURL   *string `json:"logo_url,omitempty"`
}

func (s *Side) HasMember(userID int64) bool {
	if s == nil {
		return false
	}
	for _, id := range s.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// GameScore — счёт одного гейма. Победитель матча определяется по числу
// выигранных геймов, а не по счёту первого гейма.
type GameScore struct {
	GameNumber int `json:"game_number"`
	ScoreA     int `json:"score_a"`
	ScoreB     int `json:"score_b"`
}

// GameScores хранится в БД как JSONB.
type GameScores []GameScore

func (g GameScores) Value() (driver.Value, error) {
	if g == nil {
		return nil, nil
	}
	return json.Marshal(g)
}

func (g *GameScores) Scan(src interface{}) error {
	if src == nil {
		*g = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into GameScores", src)
	}
	return json.Unmarshal(b, g)
}

// Match — единица соревнования между двумя сторонами.
// Связи next_match_id/next_match_slot (и loser_* для бронзовых/утешительных
// матчей) хранятся как явные nullable внешние ключи и разрешаются при чтении,
// без живого графа объектов с обратными ссылками.
type Match struct {
	ID            int        `json:"id" db:"id"`
	CompetitionID int        `json:"competition_id" db:"competition_id"`
	DivisionID    int        `json:"division_id" db:"division_id"`
	Stage         MatchStage `json:"stage" db:"stage"`
	Round         int        `json:"round" db:"round"`
	MatchNumber   int        `json:"match_number" db:"match_number"`
	PoolName      *string    `json:"pool_name,omitempty" db:"pool_name"`

	SideA *Side `json:"side_a,omitempty" db:"-"`
	SideB *Side `json:"side_b,omitempty" db:"-"`

	Games        GameScores  `json:"games,omitempty" db:"games"`
	WinnerSideID *int        `json:"winner_side_id,omitempty" db:"winner_side_id"`
	Status       MatchStatus `json:"status" db:"status"`

	NextMatchID        *int       `json:"next_match_id,omitempty" db:"next_match_id"`
	NextMatchSlot      *MatchSlot `json:"next_match_slot,omitempty" db:"next_match_slot"`
	LoserNextMatchID   *int       `json:"loser_next_match_id,omitempty" db:"loser_next_match_id"`
	LoserNextMatchSlot *MatchSlot `json:"loser_next_match_slot,omitempty" db:"loser_next_match_slot"`

	Verification *MatchVerificationData `json:"verification,omitempty" db:"verification"`

	// Выставляется эскалацией при organizer_only вместо автофинализации.
	NeedsReview bool `json:"needs_review" db:"needs_review"`

	ScheduledAt time.Time `json:"scheduled_at" db:"scheduled_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// SideForSlot возвращает сторону, занимающую слот.
func (m *Match) SideForSlot(slot MatchSlot) *Side {
	if slot == SlotA {
		return m.SideA
	}
	return m.SideB
}

// SideByID находит сторону матча по её id.
func (m *Match) SideByID(sideID int) *Side {
	if m.SideA != nil && m.SideA.ID == sideID {
		return m.SideA
	}
	if m.SideB != nil && m.SideB.ID == sideID {
		return m.SideB
	}
	return nil
}

// LoserSideID возвращает id проигравшей стороны завершённого матча.
func (m *Match) LoserSideID() *int {
	if m.WinnerSideID == nil || m.SideA == nil || m.SideB == nil {
		return nil
	}
	if *m.WinnerSideID == m.SideA.ID {
		return &m.SideB.ID
	}
	if *m.WinnerSideID == m.SideB.ID {
		return &m.SideA.ID
	}
	return nil
}

// OpposingSide возвращает сторону, противоположную стороне данного участника.
func (m *Match) OpposingSide(userID int64) *Side {
	if m.SideA.HasMember(userID) {
		return m.SideB
	}
	if m.SideB.HasMember(userID) {
		return m.SideA
	}
	return nil
}

// IsTerminalStatus сообщает, достиг ли матч конечного статуса жизненного цикла.
func (s MatchStatus) IsTerminal() bool {
	return s == MatchStatusCompleted || s == MatchStatusCancelled
}
