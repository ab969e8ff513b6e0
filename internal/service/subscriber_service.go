// internal/service/subscriber_service.go
package service

import (
	"context"
	"fmt"
	"log"

	"github.com/dripflow/dripflow-backend/internal/model"
	"github.com/dripflow/dripflow-backend/internal/repository"
)

// ContactResolver maps a stable contact id to its transport address. The
// tagged contact ref is resolved exactly once, at enrollment; everything
// downstream works with the canonical address.
type ContactResolver interface {
	AddressFor(ctx context.Context, contactID int64) (string, error)
}

type SubscriberService struct {
	Campaigns   repository.CampaignRepositoryInterface
	Subscribers repository.SubscriberRepositoryInterface
	Scheduler   *StepScheduler
	Resolver    ContactResolver
}

// Enroll adds a contact to a campaign and schedules its first step. Enrolling
// an already-present contact is idempotent: the existing subscriber is
// returned, no new row and no new initial job; provided metadata is still
// merged in (shallow union, new keys win).
func (s *SubscriberService) Enroll(ctx context.Context, campaignID int, ref model.ContactRef, owner string, metadata map[string]string) (*model.Subscriber, error) {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	address := ref.Address
	if address == "" {
		if ref.ContactID == nil {
			return nil, fmt.Errorf("contact reference is empty")
		}
		if s.Resolver == nil {
			return nil, fmt.Errorf("numeric contact ids need a contact resolver")
		}
		address, err = s.Resolver.AddressFor(ctx, *ref.ContactID)
		if err != nil {
			return nil, fmt.Errorf("resolve contact %d: %w", *ref.ContactID, err)
		}
	}

	sub := &model.Subscriber{
		CampaignID: campaignID,
		Owner:      owner,
		ContactID:  ref.ContactID,
		Address:    address,
		Status:     model.SubscriberStatusActive,
		Metadata:   metadata,
	}

	sub, created, err := s.Subscribers.Create(sub)
	if err != nil {
		return nil, err
	}
	if !created {
		if len(metadata) > 0 {
			if err := s.Subscribers.MergeMetadata(sub.ID, metadata); err != nil {
				log.Printf("[Subscribers] metadata merge failed for subscriber %d: %v", sub.ID, err)
			} else {
				sub.Metadata = model.MergeMetadata(sub.Metadata, metadata)
			}
		}
		return sub, nil
	}

	// First enrollment: schedule step one with its natural delay. A
	// scheduling failure does not undo the enrollment; the subscriber picks
	// up on the next resume.
	if _, err := s.Scheduler.ScheduleNext(ctx, sub, campaign, nil, false); err != nil {
		log.Printf("[Subscribers] initial scheduling failed for subscriber %d: %v", sub.ID, err)
	}
	return sub, nil
}

// Unsubscribe takes the subscriber out of the sequence by id. The row stays;
// the delivery worker's subscriber guard makes any pending job a no-op.
func (s *SubscriberService) Unsubscribe(ctx context.Context, subscriberID int) error {
	if _, err := s.Subscribers.GetByID(subscriberID); err != nil {
		return err
	}
	return s.Subscribers.UpdateStatus(subscriberID, model.SubscriberStatusUnsubscribed)
}

// UnsubscribeByAddress is the transport-initiated variant (e.g. a STOP reply).
func (s *SubscriberService) UnsubscribeByAddress(ctx context.Context, campaignID int, address string) error {
	sub, err := s.Subscribers.GetByAddress(campaignID, address)
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}
	return s.Subscribers.UpdateStatus(sub.ID, model.SubscriberStatusUnsubscribed)
}
