package models

import "time"

type Project struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProjectRef is the subset of project fields embedded in chat responses.
type ProjectRef struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

func (p *Project) Ref() *ProjectRef {
	return &ProjectRef{ID: p.ID, Title: p.Title, Status: p.Status}
}
