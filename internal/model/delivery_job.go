// internal/model/delivery_job.go
package model

import "fmt"

// DeliveryJob is the payload of one scheduled step delivery. Its JobID is the
// idempotency key in the job queue: at most one in-flight job per
// campaign/subscriber/step, with resume-mode jobs keyed separately.
type DeliveryJob struct {
	CampaignID    int    `json:"campaign_id"`
	SubscriberID  int    `json:"subscriber_id"`
	MessageOrder  int    `json:"message_order"`
	ConnectionRef string `json:"connection_ref"`
	Resume        bool   `json:"resume,omitempty"`
}

func (j DeliveryJob) JobID() string {
	id := fmt.Sprintf("%d:%d:%d", j.CampaignID, j.SubscriberID, j.MessageOrder)
	if j.Resume {
		id += ":resume"
	}
	return id
}
