package model

import "time"

type Platform struct {
	ID        PlatformID `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	Name      string     `json:"name"`
}

type PlatformFilter struct{}
