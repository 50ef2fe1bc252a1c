package domain

import (
	"time"
)

type User struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Image      string     `json:"image,omitempty"`
	Online     bool       `json:"online"`
	LastActive *time.Time `json:"last_active,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// DisplayName returns the name shown in lists, falling back to the ID.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}
