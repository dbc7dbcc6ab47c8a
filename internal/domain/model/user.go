package model

import (
	"time"
)

type User struct {
	ID         UserID     `json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	DisabledAt *time.Time `json:"disabled_at"`
	Name       string     `json:"name"`
}

func (u *User) Disabled() bool { return u.DisabledAt != nil }

type UserFilter struct {
	Disabled *bool `json:"disabled,omitempty"`
}
