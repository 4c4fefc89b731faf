package models

import "time"

// PoolAssignment — распределение команд по пулам дивизиона:
// имя пула -> упорядоченный список id команд. Команда может входить не более
// чем в один пул; нарушение — жёсткая ошибка на этапе формирования.
type PoolAssignment map[string][]int

// PoolStanding — строка таблицы пула. Производная от завершённых матчей
// read-оптимизация: авторитетны сами записи матчей, а не таблица.
type PoolStanding struct {
	ID            int       `json:"id" db:"id"`
	CompetitionID int       `json:"competition_id" db:"competition_id"`
	DivisionID    int       `json:"division_id" db:"division_id"`
	PoolName      string    `json:"pool_name" db:"pool_name"`
	SideID        int       `json:"side_id" db:"side_id"`
	SideName      string    `json:"side_name" db:"side_name"`
	GamesPlayed   int       `json:"games_played" db:"games_played"`
	Wins          int       `json:"wins" db:"wins"`
	Losses        int       `json:"losses" db:"losses"`
	PointsFor     int       `json:"points_for" db:"points_for"`
	PointsAgainst int       `json:"points_against" db:"points_against"`
	PointsDiff    int       `json:"points_diff" db:"points_diff"`
	Rank          *int      `json:"rank,omitempty" db:"rank"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
