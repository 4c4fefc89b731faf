package models

import "time"

// CompetitionStatus представляет статусы соревнования, соответствующие ENUM в БД.
type CompetitionStatus string

const (
	CompetitionStatusSoon         CompetitionStatus = "soon"
	CompetitionStatusRegistration CompetitionStatus = "registration"
	CompetitionStatusActive       CompetitionStatus = "active"
	CompetitionStatusCompleted    CompetitionStatus = "completed"
	CompetitionStatusCanceled     CompetitionStatus = "canceled"
)

type CompetitionKind string

const (
	KindTournament CompetitionKind = "tournament"
	KindLeague     CompetitionKind = "league"
	KindMeetup     CompetitionKind = "meetup"
)

// Competition — турнир, лига или клубный митап.
// Верификационная политика неизменяема после создания.
type Competition struct {
	ID           int                  `json:"id" db:"id"`
	ClubID       *int                 `json:"club_id,omitempty" db:"club_id"`
	Name         string               `json:"name" db:"name"`
	Kind         CompetitionKind      `json:"kind" db:"kind"`
	OrganizerID  int64                `json:"organizer_id" db:"organizer_id"`
	Status       CompetitionStatus    `json:"status" db:"status"`
	StartDate    time.Time            `json:"start_date" db:"start_date"`
	EndDate      time.Time            `json:"end_date" db:"end_date"`
	Verification VerificationSettings `json:"verification" db:"verification"`
	CreatedAt    time.Time            `json:"created_at" db:"created_at"`
	LogoKey      *string              `json:"-" db:"logo_key"`
	LogoURL      *string              `json:"logo_url,omitempty" db:"-"`

	// Опциональные связанные сущности (не мапятся напрямую)
	Divisions []Division `json:"divisions,omitempty" db:"-"`
	Organizer *User      `json:"organizer,omitempty" db:"-"`
}

// Division — дивизион соревнования (например, "Men's Doubles 3.5").
type Division struct {
	ID            int     `json:"id" db:"id"`
	CompetitionID int     `json:"competition_id" db:"competition_id"`
	Name          string  `json:"name" db:"name"`
	TeamSize      int     `json:"team_size" db:"team_size"` // 1 = одиночки, 2 = пары
	MaxTeams      int     `json:"max_teams" db:"max_teams"`
}
