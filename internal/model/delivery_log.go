// internal/model/delivery_log.go
package model

import "time"

// DeliveryLog is an append-only record of one delivered step. The unique
// (campaign_id, subscriber_id, message_order) index doubles as the idempotency
// backstop if a job ever executes twice.
type DeliveryLog struct {
	ID           int       `db:"id" json:"id"`
	CampaignID   int       `db:"campaign_id" json:"campaign_id"`
	SubscriberID int       `db:"subscriber_id" json:"subscriber_id"`
	MessageID    int       `db:"message_id" json:"message_id"`
	MessageOrder int       `db:"message_order" json:"message_order"`
	SentAt       time.Time `db:"sent_at" json:"sent_at"`
}
