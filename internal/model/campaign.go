// internal/model/campaign.go
package model

import "time"

const (
	CampaignStatusDraft    = "draft"
	CampaignStatusActive   = "active"
	CampaignStatusInactive = "inactive"
)

const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

type Campaign struct {
	ID                int        `db:"id" json:"id"`
	Owner             string     `db:"owner" json:"owner"`
	Name              string     `db:"name" json:"name"`
	Description       string     `db:"description" json:"description"`
	ConnectionRef     string     `db:"connection_ref" json:"connection_ref"`
	SegmentRef        *string    `db:"segment_ref" json:"segment_ref,omitempty"`
	Status            string     `db:"status" json:"status"`
	MessageRateLimit  *int       `db:"message_rate_limit" json:"message_rate_limit,omitempty"`
	RateLimitWindowMS *int64     `db:"rate_limit_window_ms" json:"rate_limit_window_ms,omitempty"`
	Priority          string     `db:"priority" json:"priority"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// RateLimited reports whether the campaign has a usable rate limit configured.
func (c *Campaign) RateLimited() bool {
	return c.MessageRateLimit != nil && *c.MessageRateLimit > 0 &&
		c.RateLimitWindowMS != nil && *c.RateLimitWindowMS > 0
}

func (c *Campaign) RateLimitWindow() time.Duration {
	if c.RateLimitWindowMS == nil {
		return 0
	}
	return time.Duration(*c.RateLimitWindowMS) * time.Millisecond
}
