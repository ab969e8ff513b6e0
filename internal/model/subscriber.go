// internal/model/subscriber.go
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	SubscriberStatusActive       = "active"
	SubscriberStatusCompleted    = "completed"
	SubscriberStatusUnsubscribed = "unsubscribed"
)

type Subscriber struct {
	ID                   int               `db:"id" json:"id"`
	CampaignID           int               `db:"campaign_id" json:"campaign_id"`
	Owner                string            `db:"owner" json:"owner"`
	ContactID            *int64            `db:"contact_id" json:"contact_id,omitempty"`
	Address              string            `db:"address" json:"address"`
	Status               string            `db:"status" json:"status"`
	LastMessageOrderSent *int              `db:"last_message_order_sent" json:"last_message_order_sent,omitempty"`
	LastMessageSentAt    *time.Time        `db:"last_message_sent_at" json:"last_message_sent_at,omitempty"`
	Metadata             map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt            time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt            *time.Time        `db:"updated_at" json:"updated_at,omitempty"`
}

// NextOrder is the smallest step order still owed to the subscriber.
func (s *Subscriber) NextOrder() int {
	if s.LastMessageOrderSent == nil {
		return 1
	}
	return *s.LastMessageOrderSent + 1
}

// MergeMetadata returns a shallow union of dst and src; keys in src win.
func MergeMetadata(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	merged := make(map[string]string, len(dst)+len(src))
	for k, v := range dst {
		merged[k] = v
	}
	for k, v := range src {
		merged[k] = v
	}
	return merged
}

// ContactRef identifies a contact either by a stable numeric id or by a raw
// transport address. It is resolved once at enrollment into a canonical
// address; later lookups always go by address.
type ContactRef struct {
	ContactID *int64
	Address   string
}

func (r *ContactRef) UnmarshalJSON(data []byte) error {
	var id int64
	if err := json.Unmarshal(data, &id); err == nil {
		r.ContactID = &id
		return nil
	}
	var addr string
	if err := json.Unmarshal(data, &addr); err == nil {
		r.Address = addr
		return nil
	}
	return fmt.Errorf("contact must be a numeric id or an address string")
}

func (r ContactRef) MarshalJSON() ([]byte, error) {
	if r.ContactID != nil {
		return json.Marshal(*r.ContactID)
	}
	return json.Marshal(r.Address)
}
