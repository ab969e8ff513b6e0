// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/dripflow/dripflow-backend/internal/cache"
	"github.com/dripflow/dripflow-backend/internal/controller"
	"github.com/dripflow/dripflow-backend/internal/db"
	"github.com/dripflow/dripflow-backend/internal/queue"
	"github.com/dripflow/dripflow-backend/internal/repository"
	"github.com/dripflow/dripflow-backend/internal/service"
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

	statusCache := cache.NewRedisStatusCache(redisClient)
	jobQueue := queue.NewRedisQueue(redisClient)

	scheduler := &service.StepScheduler{
		Steps: stepRepo,
		Queue: jobQueue,
	}
	lifecycle := &service.LifecycleController{
		Campaigns:   campaignRepo,
		Subscribers: subscriberRepo,
		Scheduler:   scheduler,
		Queue:       jobQueue,
		Cache:       statusCache,
	}
	subscriberSvc := &service.SubscriberService{
		Campaigns:   campaignRepo,
		Subscribers: subscriberRepo,
		Scheduler:   scheduler,
	}

	campaignController := &controller.CampaignController{
		CampaignRepo:  campaignRepo,
		StepRepo:      stepRepo,
		Lifecycle:     lifecycle,
		SubscriberSvc: subscriberSvc,
	}

	r := chi.NewRouter()

	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignController.GetCampaign)
	r.Delete("/campaigns/{id}", campaignController.DeleteCampaign)
	r.Patch("/campaigns/{id}/rate-limit", campaignController.UpdateRateLimit)
	r.Patch("/campaigns/{id}/priority", campaignController.UpdatePriority)

	r.Post("/campaigns/{id}/steps", campaignController.CreateStep)
	r.Get("/campaigns/{id}/steps", campaignController.ListSteps)

	r.Post("/campaigns/{id}/subscribers", campaignController.Enroll)
	r.Delete("/campaigns/{id}/subscribers/{sid}", campaignController.Unsubscribe)

	r.Post("/campaigns/{id}/activate", campaignController.Activate)
	r.Post("/campaigns/{id}/resume", campaignController.Resume)
	r.Post("/campaigns/{id}/pause", campaignController.Pause)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	log.Println("[server] listening on", addr)
	log.Fatal(http.ListenAndServe(addr, r))
}
