package models

import "time"

// SubmissionStatus — статус заявки результата. Заявка становится
// терминальной (confirmed/rejected) в рамках одного цикла верификации
// и никогда не переиспользуется.
type SubmissionStatus string

const (
	SubmissionPendingOpponent SubmissionStatus = "pending_opponent"
	SubmissionConfirmed       SubmissionStatus = "confirmed"
	SubmissionRejected        SubmissionStatus = "rejected"
)

func (s SubmissionStatus) IsTerminal() bool {
	return s == SubmissionConfirmed || s == SubmissionRejected
}

// ScoreSubmission — предложенный результат матча. Инвариант: на матч
// одновременно существует не более одной открытой (pending_opponent) заявки.
type ScoreSubmission struct {
	ID          int              `json:"id" db:"id"`
	UID         string           `json:"uid" db:"uid"` // UUID для внешних ссылок
	MatchID     int              `json:"match_id" db:"match_id"`
	SubmitterID int64            `json:"submitter_id" db:"submitter_id"`
	SideAID     int              `json:"side_a_id" db:"side_a_id"`
	SideBID     int              `json:"side_b_id" db:"side_b_id"`
	Games       GameScores       `json:"games" db:"games"`
	WinnerSideID int             `json:"winner_side_id" db:"winner_side_id"`
	Status      SubmissionStatus `json:"status" db:"status"`

	// Множество подтвердивших (дедуплицируется атомарным add-to-set в БД).
	Confirmations []int64 `json:"confirmations" db:"confirmations"`

	RejectionReason *string    `json:"rejection_reason,omitempty" db:"rejection_reason"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
}
