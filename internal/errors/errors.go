// internal/errors/errors.go
package appErrors

import "fmt"

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

type ErrSubscriberNotFound struct {
	SubscriberID int
}

func (e *ErrSubscriberNotFound) Error() string {
	return fmt.Sprintf("subscriber with ID %d not found", e.SubscriberID)
}

func NewSubscriberNotFound(id int) error {
	return &ErrSubscriberNotFound{SubscriberID: id}
}
