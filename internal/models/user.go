package models

import "time"

/** --------------------ENTITIES-------------------- */
// User is a directory entry for an identity asserted by the credential issuer.
// ID is the token subject and is never generated locally.
type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(255)" json:"id"`
	Email     string    `gorm:"type:varchar(320);index" json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

/** -------------------- DTOs -------------------- */
// Response
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	Online    *bool     `json:"online,omitempty"`
}

// UserListResponse wraps the directory listing
type UserListResponse struct {
	Users []UserResponse `json:"users"`
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}
