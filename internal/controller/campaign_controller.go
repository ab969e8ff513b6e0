// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/dripflow/dripflow-backend/internal/errors"
	"github.com/dripflow/dripflow-backend/internal/model"
	"github.com/dripflow/dripflow-backend/internal/repository"
	"github.com/dripflow/dripflow-backend/internal/service"
)

type CampaignController struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	StepRepo      repository.MessageStepRepositoryInterface
	Lifecycle     *service.LifecycleController
	SubscriberSvc *service.SubscriberService
}

func campaignID(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var cnf *appErrors.ErrCampaignNotFound
	var snf *appErrors.ErrSubscriberNotFound
	if errors.As(err, &cnf) || errors.As(err, &snf) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Owner             string  `json:"owner"`
		Name              string  `json:"name"`
		Description       string  `json:"description"`
		ConnectionRef     string  `json:"connection_ref"`
		SegmentRef        *string `json:"segment_ref"`
		MessageRateLimit  *int    `json:"message_rate_limit"`
		RateLimitWindowMS *int64  `json:"rate_limit_window_ms"`
		Priority          string  `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	campaign := &model.Campaign{
		Owner:             body.Owner,
		Name:              body.Name,
		Description:       body.Description,
		ConnectionRef:     body.ConnectionRef,
		SegmentRef:        body.SegmentRef,
		Status:            model.CampaignStatusDraft,
		MessageRateLimit:  body.MessageRateLimit,
		RateLimitWindowMS: body.RateLimitWindowMS,
		Priority:          body.Priority,
	}
	if err := c.CampaignRepo.Create(campaign); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	owner := r.URL.Query().Get("owner")
	status := r.URL.Query().Get("status")

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	campaigns, total, err := c.CampaignRepo.ListCampaigns(offset, pageSize, owner, status)
	if err != nil {
		writeError(w, err)
		return
	}

	totalPages := (total + pageSize - 1) / pageSize
	writeJSON(w, map[string]any{
		"data": campaigns,
		"pagination": map[string]int{
			"page":        page,
			"page_size":   pageSize,
			"total_count": total,
			"total_pages": totalPages,
		},
	})
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	campaign, err := c.CampaignRepo.GetByID(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, campaign)
}

func (c *CampaignController) CreateStep(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	var body struct {
		StepOrder    int     `json:"step_order"`
		Body         string  `json:"body"`
		DelayMinutes int     `json:"delay_minutes"`
		Type         string  `json:"type"`
		MediaURL     *string `json:"media_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if body.StepOrder < 1 {
		http.Error(w, "step_order must be positive", http.StatusBadRequest)
		return
	}

	if _, err := c.CampaignRepo.GetByID(id); err != nil {
		writeError(w, err)
		return
	}

	step := &model.MessageStep{
		CampaignID:   id,
		StepOrder:    body.StepOrder,
		Body:         body.Body,
		DelayMinutes: body.DelayMinutes,
		Type:         body.Type,
		MediaURL:     body.MediaURL,
	}
	if err := c.StepRepo.Create(step); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, step)
}

func (c *CampaignController) ListSteps(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	steps, err := c.StepRepo.ListByCampaign(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, steps)
}

func (c *CampaignController) Enroll(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	var body struct {
		Contact  model.ContactRef  `json:"contact"`
		Owner    string            `json:"owner"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}

	sub, err := c.SubscriberSvc.Enroll(r.Context(), id, body.Contact, body.Owner, body.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, sub)
}

func (c *CampaignController) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	sid, err := strconv.Atoi(chi.URLParam(r, "sid"))
	if err != nil {
		http.Error(w, "invalid subscriber id", http.StatusBadRequest)
		return
	}
	if err := c.SubscriberSvc.Unsubscribe(r.Context(), sid); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "unsubscribed"})
}

func (c *CampaignController) Activate(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	if err := c.Lifecycle.Activate(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"campaign_id": id, "status": model.CampaignStatusActive})
}

func (c *CampaignController) Resume(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	result, err := c.Lifecycle.Resume(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result)
}

func (c *CampaignController) Pause(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	result, err := c.Lifecycle.Pause(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result)
}

func (c *CampaignController) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	if err := c.Lifecycle.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}

func (c *CampaignController) UpdateRateLimit(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	var body struct {
		MessageRateLimit  *int   `json:"message_rate_limit"`
		RateLimitWindowMS *int64 `json:"rate_limit_window_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if _, err := c.CampaignRepo.GetByID(id); err != nil {
		writeError(w, err)
		return
	}
	if err := c.CampaignRepo.UpdateRateLimit(id, body.MessageRateLimit, body.RateLimitWindowMS); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"campaign_id": id})
}

func (c *CampaignController) UpdatePriority(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	var body struct {
		Priority string `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	switch body.Priority {
	case model.PriorityHigh, model.PriorityNormal, model.PriorityLow:
	default:
		http.Error(w, "priority must be high, normal or low", http.StatusBadRequest)
		return
	}

	if _, err := c.CampaignRepo.GetByID(id); err != nil {
		writeError(w, err)
		return
	}
	if err := c.CampaignRepo.UpdatePriority(id, body.Priority); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"campaign_id": id, "priority": body.Priority})
}
