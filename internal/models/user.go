package models

import "time"

const (
	RoleTradie  = "tradie"
	RoleBuilder = "builder"
)

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	FullName     *string   `json:"full_name"`
	AvatarURL    *string   `json:"avatar_url"`
	CompanyName  *string   `json:"company_name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Participant is the public identity of a conversation party, shaped for
// embedding in chat responses.
type Participant struct {
	ID          int64   `json:"id"`
	FullName    *string `json:"full_name"`
	AvatarURL   *string `json:"avatar_url"`
	CompanyName *string `json:"company_name"`
	Role        string  `json:"role"`
}

// Public strips credentials and contact fields from a user record.
func (u *User) Public() *Participant {
	return &Participant{
		ID:          u.ID,
		FullName:    u.FullName,
		AvatarURL:   u.AvatarURL,
		CompanyName: u.CompanyName,
		Role:        u.Role,
	}
}

// DisplayName returns the user's full name, falling back to the email.
func (u *User) DisplayName() string {
	if u.FullName != nil && *u.FullName != "" {
		return *u.FullName
	}
	return u.Email
}
