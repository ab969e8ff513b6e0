// internal/service/scheduler.go
package service

import (
	"context"
	"log"
	"time"

	"github.com/dripflow/dripflow-backend/internal/model"
	"github.com/dripflow/dripflow-backend/internal/queue"
	"github.com/dripflow/dripflow-backend/internal/repository"
)

// StepScheduler decides which step a subscriber is owed next and enqueues
// exactly one delayed job for it. It is safe to call liberally: the gateway's
// per-jobID idempotency swallows duplicate enqueues for the same
// subscriber/step pair.
type StepScheduler struct {
	Steps repository.MessageStepRepositoryInterface
	Queue queue.Gateway
}

// ScheduleNext enqueues the subscriber's next step. The target is the
// smallest step order >= last_message_order_sent + 1 (orders need not be
// contiguous). Returns the scheduled step, or nil when the sequence is
// exhausted; whether an exhausted subscriber transitions to completed is the
// delivery worker's call.
//
// overrideDelay replaces the step's natural delay when set; resume keys the
// job with the resume suffix so a bulk resume never collides with a leftover
// naturally-scheduled job.
func (s *StepScheduler) ScheduleNext(ctx context.Context, sub *model.Subscriber, campaign *model.Campaign, overrideDelay *time.Duration, resume bool) (*model.MessageStep, error) {
	if sub.Status != model.SubscriberStatusActive {
		return nil, nil
	}

	target := sub.NextOrder()
	step, err := s.Steps.NextStep(campaign.ID, target)
	if err != nil {
		log.Printf("[Scheduler] next-step lookup failed for subscriber %d (campaign %d): %v", sub.ID, campaign.ID, err)
		return nil, err
	}
	if step == nil {
		return nil, nil
	}

	job := model.DeliveryJob{
		CampaignID:    campaign.ID,
		SubscriberID:  sub.ID,
		MessageOrder:  step.StepOrder,
		ConnectionRef: campaign.ConnectionRef,
		Resume:        resume,
	}

	delay := step.Delay()
	if overrideDelay != nil {
		delay = *overrideDelay
	}

	if err := s.Queue.Enqueue(ctx, job.JobID(), job, delay); err != nil {
		log.Printf("[Scheduler] enqueue failed for job %s: %v", job.JobID(), err)
		return nil, err
	}
	return step, nil
}
