// internal/service/lifecycle.go
package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dripflow/dripflow-backend/internal/cache"
	"github.com/dripflow/dripflow-backend/internal/model"
	"github.com/dripflow/dripflow-backend/internal/queue"
	"github.com/dripflow/dripflow-backend/internal/repository"
)

// LifecycleController owns campaign status transitions and their bulk side
// effects. Status transitions are the only trigger for bulk scheduling or
// cancellation; rate-limit and priority edits never touch enqueued jobs.
type LifecycleController struct {
	Campaigns   repository.CampaignRepositoryInterface
	Subscribers repository.SubscriberRepositoryInterface
	Scheduler   *StepScheduler
	Queue       queue.Gateway
	Cache       cache.StatusCache

	// Bulk resume knobs; zero values fall back to the defaults below.
	ResumeDelay   time.Duration
	ThrottleEvery int
	ThrottlePause time.Duration
}

const (
	defaultResumeDelay   = 10 * time.Second
	defaultThrottleEvery = 10
	defaultThrottlePause = 500 * time.Millisecond
)

type ResumeResult struct {
	CampaignID int `json:"campaign_id"`
	Scheduled  int `json:"scheduled"`
	Failed     int `json:"failed"`
}

type PauseResult struct {
	CampaignID   int `json:"campaign_id"`
	Canceled     int `json:"canceled"`
	CancelFailed int `json:"cancel_failed"`
}

// setStatus persists the new status and writes it through to the status cache
// so in-flight workers observe the transition without a store read.
func (l *LifecycleController) setStatus(ctx context.Context, campaignID int, status string) error {
	if err := l.Campaigns.UpdateStatus(campaignID, status); err != nil {
		return err
	}
	if err := l.Cache.Set(ctx, cache.CampaignStatusKey(campaignID), status, cache.CampaignStatusTTL); err != nil {
		log.Printf("[Lifecycle] status cache write failed for campaign %d: %v", campaignID, err)
	}
	return nil
}

// Activate moves a draft campaign to active with no scheduling side effect:
// enrollment schedules each subscriber's first step directly, and the
// delivery worker refuses jobs for non-active campaigns in the meantime.
func (l *LifecycleController) Activate(ctx context.Context, campaignID int) error {
	if _, err := l.Campaigns.GetByID(campaignID); err != nil {
		return err
	}
	return l.setStatus(ctx, campaignID, model.CampaignStatusActive)
}

// Resume is the costly transition: it re-derives every active subscriber's
// next step and enqueues it with a short fixed delay, so delivery picks up
// promptly instead of waiting out the original step delay. Per-subscriber
// failures are logged and skipped; the operation never aborts on one.
func (l *LifecycleController) Resume(ctx context.Context, campaignID int) (*ResumeResult, error) {
	campaign, err := l.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	if err := l.setStatus(ctx, campaignID, model.CampaignStatusActive); err != nil {
		return nil, err
	}
	campaign.Status = model.CampaignStatusActive

	subs, err := l.Subscribers.ListActiveByCampaign(campaignID)
	if err != nil {
		return nil, fmt.Errorf("load subscribers for resume: %w", err)
	}

	resumeDelay := l.ResumeDelay
	if resumeDelay <= 0 {
		resumeDelay = defaultResumeDelay
	}
	throttleEvery := l.ThrottleEvery
	if throttleEvery <= 0 {
		throttleEvery = defaultThrottleEvery
	}
	throttlePause := l.ThrottlePause
	if throttlePause <= 0 {
		throttlePause = defaultThrottlePause
	}

	result := &ResumeResult{CampaignID: campaignID}
	for i, sub := range subs {
		// Bound the burst on the queue and the store during bulk resume.
		if i > 0 && i%throttleEvery == 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(throttlePause):
			}
		}

		step, err := l.Scheduler.ScheduleNext(ctx, sub, campaign, &resumeDelay, true)
		if err != nil {
			log.Printf("[Lifecycle] resume scheduling failed for subscriber %d: %v", sub.ID, err)
			result.Failed++
			continue
		}
		if step != nil {
			result.Scheduled++
		}
	}

	log.Printf("[Lifecycle] campaign %d resumed: %d scheduled, %d failed", campaignID, result.Scheduled, result.Failed)
	return result, nil
}

// Pause persists the inactive status first, then cancels pending jobs
// best-effort. Cancellation failures never roll back the transition; the
// worker's active-status guard is the authoritative backstop for stragglers.
func (l *LifecycleController) Pause(ctx context.Context, campaignID int) (*PauseResult, error) {
	if _, err := l.Campaigns.GetByID(campaignID); err != nil {
		return nil, err
	}

	if err := l.setStatus(ctx, campaignID, model.CampaignStatusInactive); err != nil {
		return nil, err
	}

	result := &PauseResult{CampaignID: campaignID}
	result.Canceled, result.CancelFailed = l.cancelPending(ctx, campaignID)
	log.Printf("[Lifecycle] campaign %d paused: %d jobs canceled, %d cancel failures", campaignID, result.Canceled, result.CancelFailed)
	return result, nil
}

// Delete cancels pending jobs best-effort, then removes the campaign and
// everything it owns.
func (l *LifecycleController) Delete(ctx context.Context, campaignID int) error {
	if _, err := l.Campaigns.GetByID(campaignID); err != nil {
		return err
	}
	canceled, failed := l.cancelPending(ctx, campaignID)
	if failed > 0 {
		log.Printf("[Lifecycle] campaign %d delete: %d of %d pending jobs not canceled", campaignID, failed, canceled+failed)
	}
	return l.Campaigns.Delete(campaignID)
}

func (l *LifecycleController) cancelPending(ctx context.Context, campaignID int) (canceled, failed int) {
	prefix := fmt.Sprintf("%d:", campaignID)
	pending, err := l.Queue.ListPending(ctx, func(j queue.Job) bool {
		return strings.HasPrefix(j.ID, prefix)
	})
	if err != nil {
		log.Printf("[Lifecycle] list pending jobs failed for campaign %d: %v", campaignID, err)
		return 0, 0
	}

	for _, job := range pending {
		if err := l.Queue.Cancel(ctx, job.ID); err != nil {
			log.Printf("[Lifecycle] cancel failed for job %s: %v", job.ID, err)
			failed++
			continue
		}
		canceled++
	}
	return canceled, failed
}
