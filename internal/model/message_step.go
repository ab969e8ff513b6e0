// internal/model/message_step.go
package model

import "time"

const (
	StepTypeText  = "text"
	StepTypeMedia = "media"
)

// MessageStep is one message in a campaign's drip sequence. StepOrder values
// are unique per campaign but not required to be contiguous.
type MessageStep struct {
	ID           int       `db:"id" json:"id"`
	CampaignID   int       `db:"campaign_id" json:"campaign_id"`
	StepOrder    int       `db:"step_order" json:"step_order"`
	Body         string    `db:"body" json:"body"`
	DelayMinutes int       `db:"delay_minutes" json:"delay_minutes"`
	Type         string    `db:"type" json:"type"`
	MediaURL     *string   `db:"media_url" json:"media_url,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Delay is the wait after the previous step (or after enrollment for the first step).
func (s *MessageStep) Delay() time.Duration {
	return time.Duration(s.DelayMinutes) * time.Minute
}
