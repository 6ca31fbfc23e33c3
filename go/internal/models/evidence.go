package models

import "time"

// Evidence is a single evidence submission for a faction.
type Evidence struct {
	ID        EntityID  `json:"id"`
	FactionID string    `json:"faction_id"`
	Author    Author    `json:"author"`
	Summary   string    `json:"summary"`
	Body      string    `json:"body"`
	ImageURLs []string  `json:"image_urls,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EvidenceGroup holds a faction's submissions, newest first.
type EvidenceGroup struct {
	FactionID   string     `json:"faction_id"`
	Submissions []Evidence `json:"submissions"`
}

// EvidenceDraft is the user input for an evidence submission.
type EvidenceDraft struct {
	FactionID string
	Summary   string
	Body      string
	Images    []Image
}

// Image is an attachment uploaded with evidence.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}
