package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HandlerFunc executes one due job. A nil return acks the job; an error
// triggers retry-with-backoff up to MaxAttempts, after which the job is
// marked failed.
type HandlerFunc func(ctx context.Context, job Job) error

type ConsumerConfig struct {
	Concurrency  int
	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
}

func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Concurrency:  10,
		BatchSize:    50,
		PollInterval: time.Second,
		MaxAttempts:  3,
		RetryBackoff: 30 * time.Second,
	}
}

// Consumer polls the delayed set for due jobs and dispatches each to a
// handler on a bounded worker pool. Every job executes independently; there
// is no lock across jobs.
type Consumer struct {
	queue      *RedisQueue
	handler    HandlerFunc
	config     ConsumerConfig
	consumerID string

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewConsumer(q *RedisQueue, handler HandlerFunc, config ConsumerConfig) *Consumer {
	if config.Concurrency <= 0 {
		config.Concurrency = 10
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	return &Consumer{
		queue:      q,
		handler:    handler,
		config:     config,
		consumerID: fmt.Sprintf("consumer-%s", uuid.New().String()[:8]),
	}
}

func (c *Consumer) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer already running")
	}
	c.running = true
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	log.Printf("[Consumer] %s starting %d workers (batch_size=%d)", c.consumerID, c.config.Concurrency, c.config.BatchSize)

	jobs := make(chan Job)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(jobs)
	}

	c.wg.Add(1)
	go c.poll(jobs)

	return nil
}

func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	log.Printf("[Consumer] %s stopped", c.consumerID)
}

func (c *Consumer) poll(jobs chan<- Job) {
	defer c.wg.Done()
	defer close(jobs)

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			claimed, err := c.queue.claimDue(c.ctx, c.config.BatchSize)
			if err != nil {
				if c.ctx.Err() == nil {
					log.Printf("[Consumer] claim error: %v", err)
				}
				continue
			}
			for i, job := range claimed {
				select {
				case <-c.ctx.Done():
					// Claimed but not executed: this job and everything after
					// it in the batch go back so the next run picks them up.
					for _, j := range claimed[i:] {
						if err := c.queue.requeue(context.Background(), j, 0); err != nil {
							log.Printf("[Consumer] requeue on shutdown failed for %s: %v", j.ID, err)
						}
					}
					return
				case jobs <- job:
				}
			}
		}
	}
}

func (c *Consumer) worker(jobs <-chan Job) {
	defer c.wg.Done()

	for job := range jobs {
		c.process(c.ctx, job)
	}
}

func (c *Consumer) process(ctx context.Context, job Job) {
	err := c.handler(ctx, job)

	// Bookkeeping runs on its own context: a job whose handler finished during
	// shutdown must still be acked (or requeued), or its payload is orphaned.
	bookCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err == nil {
		if err := c.queue.ack(bookCtx, job.ID); err != nil {
			log.Printf("[Consumer] ack failed for %s: %v", job.ID, err)
		}
		return
	}

	job.Attempts++
	log.Printf("[Consumer] job %s failed (attempt %d/%d): %v", job.ID, job.Attempts, c.config.MaxAttempts, err)

	if job.Attempts >= c.config.MaxAttempts {
		log.Printf("[Consumer] job %s permanently failed after %d attempts", job.ID, job.Attempts)
		c.queue.markFailed(bookCtx, job, err)
		return
	}

	backoff := time.Duration(job.Attempts) * c.config.RetryBackoff
	if err := c.queue.requeue(bookCtx, job, backoff); err != nil {
		log.Printf("[Consumer] requeue failed for %s: %v", job.ID, err)
	}
}

// RunOnce drains everything currently due without starting the background
// poller. Used by tests and by operator tooling.
func (c *Consumer) RunOnce(ctx context.Context) (int, error) {
	processed := 0
	for {
		claimed, err := c.queue.claimDue(ctx, c.config.BatchSize)
		if err != nil {
			return processed, err
		}
		if len(claimed) == 0 {
			return processed, nil
		}
		for _, job := range claimed {
			c.process(ctx, job)
			processed++
		}
	}
}
