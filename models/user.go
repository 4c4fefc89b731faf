package models

import "time"

type UserRole string

const (
	RolePlayer    UserRole = "player"
	RoleOrganizer UserRole = "organizer"
	RoleAdmin     UserRole = "admin"
)

type User struct {
	ID           int64     `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Nickname     *string   `json:"nickname,omitempty"`
	Role         UserRole  `json:"role"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Rating       *float64  `json:"rating,omitempty"` // DUPR-подобный рейтинг, опционально
	CreatedAt    time.Time `json:"created_at"`
}

// IsOrganizer сообщает, может ли пользователь выполнять организаторские
// операции (прямой ввод счёта, разрешение споров).
func (u *User) IsOrganizer() bool {
	return u != nil && (u.Role == RoleOrganizer || u.Role == RoleAdmin)
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
