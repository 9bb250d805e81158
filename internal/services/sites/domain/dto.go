// Package domain holds the site registry model
package domain

import "time"

// Site is one measurable site
type Site struct {
	ID        int64     `json:"id" example:"1"`
	Name      string    `json:"name" example:"statskeep demo"`
	MainURL   string    `json:"main_url" example:"https://example.org"`
	Timezone  string    `json:"timezone" example:"UTC"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateInput registers a new site
type CreateInput struct {
	Name     string `json:"name" validate:"required,min=1,max=255" example:"statskeep demo"`
	MainURL  string `json:"main_url" validate:"required,url" example:"https://example.org"`
	Timezone string `json:"timezone" validate:"omitempty,max=64" example:"UTC"`
}

// GetInput fetches one site by id
type GetInput struct {
	ID int64 `json:"id" validate:"required,min=1" example:"1"`
}

// ListInput pages through the registry
type ListInput struct {
	Limit  int `json:"limit,omitempty" validate:"omitempty,min=1,max=500" example:"100"`
	Offset int `json:"offset,omitempty" validate:"omitempty,min=0" example:"0"`
}
