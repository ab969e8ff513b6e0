// cmd/worker/main.go
package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/dripflow/dripflow-backend/internal/cache"
	"github.com/dripflow/dripflow-backend/internal/db"
	"github.com/dripflow/dripflow-backend/internal/queue"
	"github.com/dripflow/dripflow-backend/internal/ratelimit"
	"github.com/dripflow/dripflow-backend/internal/repository"
	"github.com/dripflow/dripflow-backend/internal/service"
	"github.com/dripflow/dripflow-backend/internal/transport"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on OS environment variables")
	}

	db.Init()

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("invalid REDIS_URL: %v", err)
	}
	redisClient := redis.NewClient(opts)

	campaignRepo := &repository.CampaignRepository{DB: db.DB}
	stepRepo := &repository.MessageStepRepository{DB: db.DB}
	subscriberRepo := &repository.SubscriberRepository{DB: db.DB}
	logRepo := &repository.DeliveryLogRepository{DB: db.DB}

	jobQueue := queue.NewRedisQueue(redisClient)

	worker := &service.DeliveryWorker{
		Campaigns:   campaignRepo,
		Subscribers: subscriberRepo,
		Steps:       stepRepo,
		Logs:        logRepo,
		Queue:       jobQueue,
		Cache:       cache.NewRedisStatusCache(redisClient),
		Limiter:     ratelimit.NewCampaignRateLimiter(redisClient),
		Transport:   transport.NewMockTransport(),
		Scheduler: &service.StepScheduler{
			Steps: stepRepo,
			Queue: jobQueue,
		},
	}

	config := queue.DefaultConsumerConfig()
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Concurrency = n
		}
	}

	consumer := queue.NewConsumer(jobQueue, worker.Handle, config)
	if err := consumer.Start(); err != nil {
		log.Fatal("failed to start consumer:", err)
	}

	log.Println("[worker] running, waiting for due jobs...")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("[worker] shutting down")
	consumer.Stop()
}
