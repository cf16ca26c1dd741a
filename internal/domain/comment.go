package domain

import "time"

// Comment is a user note attached to a country/region/date. Every field but
// ID is optional; nil is stored and rendered as null.
type Comment struct {
	ID      string  `json:"_id"`
	Country *string `json:"country"`
	Region  *string `json:"region"`
	Date    *string `json:"date"`
	Text    *string `json:"text"`
}

// CommentFilter restricts a comment listing. Empty fields are unconstrained.
type CommentFilter struct {
	Country string
	Region  string
}

// CommentEvent is published after a comment has been stored.
type CommentEvent struct {
	ID        string    `json:"id"`
	Country   *string   `json:"country"`
	Region    *string   `json:"region"`
	Date      *string   `json:"date"`
	Text      *string   `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// NewCommentEvent stamps a stored comment with the current time.
func NewCommentEvent(c Comment) CommentEvent {
	return CommentEvent{
		ID:        c.ID,
		Country:   c.Country,
		Region:    c.Region,
		Date:      c.Date,
		Text:      c.Text,
		CreatedAt: clock.Now().UTC(),
	}
}
