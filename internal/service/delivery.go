// internal/service/delivery.go
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dripflow/dripflow-backend/internal/cache"
	appErrors "github.com/dripflow/dripflow-backend/internal/errors"
	"github.com/dripflow/dripflow-backend/internal/model"
	"github.com/dripflow/dripflow-backend/internal/queue"
	"github.com/dripflow/dripflow-backend/internal/repository"
	"github.com/dripflow/dripflow-backend/internal/transport"
)

// RateLimiter gates deliveries per campaign.
type RateLimiter interface {
	Allow(ctx context.Context, campaignID, limit int, window time.Duration) bool
}

// DeliveryWorker executes one scheduled step delivery per job. Returning an
// error hands the job back to the queue's retry mechanism; returning nil acks
// it, including the abort paths where retrying would be pointless.
type DeliveryWorker struct {
	Campaigns   repository.CampaignRepositoryInterface
	Subscribers repository.SubscriberRepositoryInterface
	Steps       repository.MessageStepRepositoryInterface
	Logs        repository.DeliveryLogRepositoryInterface
	Queue       queue.Gateway
	Cache       cache.StatusCache
	Limiter     RateLimiter
	Transport   transport.Transport
	Scheduler   *StepScheduler

	// Delay applied when a delivery is pushed back by the rate limiter.
	RateLimitRetryDelay time.Duration
}

const defaultRateLimitRetryDelay = 15 * time.Second

func (w *DeliveryWorker) Handle(ctx context.Context, job queue.Job) error {
	var dj model.DeliveryJob
	if err := json.Unmarshal(job.Payload, &dj); err != nil {
		log.Printf("[Delivery] dropping job %s with unreadable payload: %v", job.ID, err)
		return nil
	}

	// Guard: the campaign must still be active. This check, not job
	// cancellation, is what makes pause effective for jobs already in flight.
	// The loader keeps the row it fetched so a cache miss costs one store read,
	// not two.
	var campaign *model.Campaign
	status, err := cache.ResolveCampaignStatus(ctx, w.Cache, dj.CampaignID, func() (string, error) {
		c, err := w.Campaigns.GetByID(dj.CampaignID)
		if err != nil {
			return "", err
		}
		campaign = c
		return c.Status, nil
	})
	if err != nil {
		var notFound *appErrors.ErrCampaignNotFound
		if errors.As(err, &notFound) {
			log.Printf("[Delivery] dropping job %s: campaign %d gone", job.ID, dj.CampaignID)
			return nil
		}
		return fmt.Errorf("resolve campaign %d status: %w", dj.CampaignID, err)
	}
	if status != model.CampaignStatusActive {
		log.Printf("[Delivery] skipping job %s: campaign %d is %s", job.ID, dj.CampaignID, status)
		return nil
	}

	sub, err := w.Subscribers.GetByID(dj.SubscriberID)
	if err != nil {
		var notFound *appErrors.ErrSubscriberNotFound
		if errors.As(err, &notFound) {
			log.Printf("[Delivery] dropping job %s: subscriber %d gone", job.ID, dj.SubscriberID)
			return nil
		}
		return fmt.Errorf("load subscriber %d: %w", dj.SubscriberID, err)
	}
	if sub.Status != model.SubscriberStatusActive {
		log.Printf("[Delivery] skipping job %s: subscriber %d is %s", job.ID, sub.ID, sub.Status)
		return nil
	}

	if campaign == nil {
		campaign, err = w.Campaigns.GetByID(dj.CampaignID)
		if err != nil {
			return fmt.Errorf("load campaign %d: %w", dj.CampaignID, err)
		}
	}

	// The job names a step order; a ceiling lookup tolerates the step having
	// been edited out since scheduling.
	step, err := w.Steps.NextStep(campaign.ID, dj.MessageOrder)
	if err != nil {
		return fmt.Errorf("load step >= %d for campaign %d: %w", dj.MessageOrder, campaign.ID, err)
	}
	if step == nil {
		// Sequence exhausted: nothing left to send for this subscriber.
		w.complete(sub)
		return nil
	}
	if step.StepOrder < sub.NextOrder() {
		log.Printf("[Delivery] skipping job %s: step %d already delivered to subscriber %d", job.ID, step.StepOrder, sub.ID)
		return nil
	}

	if campaign.RateLimited() && !w.Limiter.Allow(ctx, campaign.ID, *campaign.MessageRateLimit, campaign.RateLimitWindow()) {
		retryDelay := w.RateLimitRetryDelay
		if retryDelay <= 0 {
			retryDelay = defaultRateLimitRetryDelay
		}
		// Push the same job back rather than failing it; returning nil keeps
		// the attempt budget for real transport failures.
		if err := w.Queue.Enqueue(ctx, dj.JobID(), dj, retryDelay); err != nil {
			return fmt.Errorf("re-enqueue rate-limited job %s: %w", dj.JobID(), err)
		}
		log.Printf("[Delivery] campaign %d over rate limit, job %s pushed back %s", campaign.ID, dj.JobID(), retryDelay)
		return nil
	}

	msg := transport.Message{Body: step.Body, Type: step.Type, MediaURL: step.MediaURL}
	if err := w.Transport.Send(ctx, dj.ConnectionRef, sub.Address, msg); err != nil {
		// Subscriber state is untouched: the queue retries, and after
		// exhaustion an operator resume re-derives this same step.
		return fmt.Errorf("send step %d to subscriber %d: %w", step.StepOrder, sub.ID, err)
	}

	sentAt := time.Now()
	created, err := w.Logs.Append(&model.DeliveryLog{
		CampaignID:   campaign.ID,
		SubscriberID: sub.ID,
		MessageID:    step.ID,
		MessageOrder: step.StepOrder,
		SentAt:       sentAt,
	})
	if err != nil {
		return fmt.Errorf("record delivery for subscriber %d step %d: %w", sub.ID, step.StepOrder, err)
	}
	if !created {
		log.Printf("[Delivery] duplicate execution detected for job %s, log row already present", job.ID)
	}

	if err := w.Subscribers.MarkProgress(sub.ID, step.StepOrder, sentAt); err != nil {
		return fmt.Errorf("advance subscriber %d: %w", sub.ID, err)
	}
	order := step.StepOrder
	sub.LastMessageOrderSent = &order
	sub.LastMessageSentAt = &sentAt

	// Enqueue the following step only after the log and progress writes, so
	// per-subscriber delivery stays monotonic.
	next, err := w.Scheduler.ScheduleNext(ctx, sub, campaign, nil, false)
	if err != nil {
		// This delivery succeeded; the subscriber stays eligible for a later
		// scheduling pass (e.g. the next resume).
		log.Printf("[Delivery] follow-up scheduling failed for subscriber %d: %v", sub.ID, err)
		return nil
	}
	if next == nil {
		w.complete(sub)
	}
	return nil
}

func (w *DeliveryWorker) complete(sub *model.Subscriber) {
	if err := w.Subscribers.UpdateStatus(sub.ID, model.SubscriberStatusCompleted); err != nil {
		log.Printf("[Delivery] mark subscriber %d completed failed: %v", sub.ID, err)
		return
	}
	log.Printf("[Delivery] subscriber %d completed the sequence", sub.ID)
}
