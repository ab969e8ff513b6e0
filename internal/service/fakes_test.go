package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	appErrors "github.com/dripflow/dripflow-backend/internal/errors"
	"github.com/dripflow/dripflow-backend/internal/model"
	"github.com/dripflow/dripflow-backend/internal/queue"
	"github.com/dripflow/dripflow-backend/internal/repository"
	"github.com/dripflow/dripflow-backend/internal/transport"
)

// Hand-written fakes shared by the service tests. They replicate only the
// contract the services rely on (idempotent enqueue, ceiling step lookup,
// monotonic progress), not the stores behind them.

type fakeCampaignRepo struct {
	campaigns map[int]*model.Campaign
	getCalls  int
}

func newFakeCampaignRepo(campaigns ...*model.Campaign) *fakeCampaignRepo {
	r := &fakeCampaignRepo{campaigns: map[int]*model.Campaign{}}
	for _, c := range campaigns {
		r.campaigns[c.ID] = c
	}
	return r
}

func (r *fakeCampaignRepo) Create(c *model.Campaign) error {
	r.campaigns[c.ID] = c
	return nil
}

func (r *fakeCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	r.getCalls++
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	copied := *c
	return &copied, nil
}

func (r *fakeCampaignRepo) ListCampaigns(offset, limit int, owner, status string) ([]*model.Campaign, int, error) {
	return nil, 0, nil
}

func (r *fakeCampaignRepo) UpdateStatus(campaignID int, status string) error {
	c, ok := r.campaigns[campaignID]
	if !ok {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	c.Status = status
	return nil
}

func (r *fakeCampaignRepo) UpdateRateLimit(campaignID int, limit *int, windowMS *int64) error {
	c, ok := r.campaigns[campaignID]
	if !ok {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	c.MessageRateLimit = limit
	c.RateLimitWindowMS = windowMS
	return nil
}

func (r *fakeCampaignRepo) UpdatePriority(campaignID int, priority string) error {
	c, ok := r.campaigns[campaignID]
	if !ok {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	c.Priority = priority
	return nil
}

func (r *fakeCampaignRepo) Delete(campaignID int) error {
	delete(r.campaigns, campaignID)
	return nil
}

var _ repository.CampaignRepositoryInterface = (*fakeCampaignRepo)(nil)

type fakeSubscriberRepo struct {
	subs   map[int]*model.Subscriber
	nextID int
}

func newFakeSubscriberRepo(subs ...*model.Subscriber) *fakeSubscriberRepo {
	r := &fakeSubscriberRepo{subs: map[int]*model.Subscriber{}, nextID: 1}
	for _, s := range subs {
		r.subs[s.ID] = s
		if s.ID >= r.nextID {
			r.nextID = s.ID + 1
		}
	}
	return r
}

func (r *fakeSubscriberRepo) Create(s *model.Subscriber) (*model.Subscriber, bool, error) {
	existing, err := r.GetByAddress(s.CampaignID, s.Address)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	s.ID = r.nextID
	r.nextID++
	if s.Status == "" {
		s.Status = model.SubscriberStatusActive
	}
	r.subs[s.ID] = s
	return s, true, nil
}

func (r *fakeSubscriberRepo) GetByID(id int) (*model.Subscriber, error) {
	s, ok := r.subs[id]
	if !ok {
		return nil, appErrors.NewSubscriberNotFound(id)
	}
	copied := *s
	return &copied, nil
}

func (r *fakeSubscriberRepo) GetByAddress(campaignID int, address string) (*model.Subscriber, error) {
	for _, s := range r.subs {
		if s.CampaignID == campaignID && s.Address == address {
			return s, nil
		}
	}
	return nil, nil
}

func (r *fakeSubscriberRepo) ListActiveByCampaign(campaignID int) ([]*model.Subscriber, error) {
	out := []*model.Subscriber{}
	for _, s := range r.subs {
		if s.CampaignID == campaignID && s.Status == model.SubscriberStatusActive {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeSubscriberRepo) MarkProgress(id, order int, sentAt time.Time) error {
	s, ok := r.subs[id]
	if !ok {
		return appErrors.NewSubscriberNotFound(id)
	}
	if s.LastMessageOrderSent == nil || *s.LastMessageOrderSent < order {
		s.LastMessageOrderSent = &order
		s.LastMessageSentAt = &sentAt
	}
	return nil
}

func (r *fakeSubscriberRepo) UpdateStatus(id int, status string) error {
	s, ok := r.subs[id]
	if !ok {
		return appErrors.NewSubscriberNotFound(id)
	}
	s.Status = status
	return nil
}

func (r *fakeSubscriberRepo) MergeMetadata(id int, metadata map[string]string) error {
	s, ok := r.subs[id]
	if !ok {
		return appErrors.NewSubscriberNotFound(id)
	}
	s.Metadata = model.MergeMetadata(s.Metadata, metadata)
	return nil
}

func (r *fakeSubscriberRepo) Delete(id int) error {
	delete(r.subs, id)
	return nil
}

func (r *fakeSubscriberRepo) DeleteByAddress(campaignID int, address string) error {
	for id, s := range r.subs {
		if s.CampaignID == campaignID && s.Address == address {
			delete(r.subs, id)
		}
	}
	return nil
}

var _ repository.SubscriberRepositoryInterface = (*fakeSubscriberRepo)(nil)

type fakeStepRepo struct {
	steps []*model.MessageStep
	err   error
}

func (r *fakeStepRepo) Create(s *model.MessageStep) error {
	r.steps = append(r.steps, s)
	return nil
}

func (r *fakeStepRepo) ListByCampaign(campaignID int) ([]*model.MessageStep, error) {
	out := []*model.MessageStep{}
	for _, s := range r.steps {
		if s.CampaignID == campaignID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepOrder < out[j].StepOrder })
	return out, nil
}

func (r *fakeStepRepo) NextStep(campaignID, minOrder int) (*model.MessageStep, error) {
	if r.err != nil {
		return nil, r.err
	}
	var best *model.MessageStep
	for _, s := range r.steps {
		if s.CampaignID != campaignID || s.StepOrder < minOrder {
			continue
		}
		if best == nil || s.StepOrder < best.StepOrder {
			best = s
		}
	}
	return best, nil
}

var _ repository.MessageStepRepositoryInterface = (*fakeStepRepo)(nil)

type fakeLogRepo struct {
	entries   []*model.DeliveryLog
	appendErr error
}

func (r *fakeLogRepo) Append(l *model.DeliveryLog) (bool, error) {
	if r.appendErr != nil {
		return false, r.appendErr
	}
	for _, e := range r.entries {
		if e.CampaignID == l.CampaignID && e.SubscriberID == l.SubscriberID && e.MessageOrder == l.MessageOrder {
			return false, nil
		}
	}
	l.ID = len(r.entries) + 1
	r.entries = append(r.entries, l)
	return true, nil
}

func (r *fakeLogRepo) ListByCampaign(campaignID int) ([]*model.DeliveryLog, error) {
	out := []*model.DeliveryLog{}
	for _, e := range r.entries {
		if e.CampaignID == campaignID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeLogRepo) CountByCampaign(campaignID int) (int, error) {
	logs, _ := r.ListByCampaign(campaignID)
	return len(logs), nil
}

var _ repository.DeliveryLogRepositoryInterface = (*fakeLogRepo)(nil)

type fakeJob struct {
	payload any
	delay   time.Duration
}

// fakeGateway keeps the real gateway's per-jobID idempotency: a duplicate
// Enqueue is a silent no-op that leaves the first job untouched.
type fakeGateway struct {
	jobs       map[string]fakeJob
	order      []string
	enqueueErr map[string]error
	cancelErr  map[string]error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		jobs:       map[string]fakeJob{},
		enqueueErr: map[string]error{},
		cancelErr:  map[string]error{},
	}
}

func (g *fakeGateway) Enqueue(ctx context.Context, jobID string, payload any, delay time.Duration) error {
	if err := g.enqueueErr[jobID]; err != nil {
		return err
	}
	if _, ok := g.jobs[jobID]; ok {
		return nil
	}
	g.jobs[jobID] = fakeJob{payload: payload, delay: delay}
	g.order = append(g.order, jobID)
	return nil
}

func (g *fakeGateway) ListPending(ctx context.Context, filter func(queue.Job) bool) ([]queue.Job, error) {
	out := []queue.Job{}
	for _, id := range g.order {
		if _, ok := g.jobs[id]; !ok {
			continue
		}
		j := queue.Job{ID: id}
		if filter == nil || filter(j) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (g *fakeGateway) Cancel(ctx context.Context, jobID string) error {
	if err := g.cancelErr[jobID]; err != nil {
		return err
	}
	delete(g.jobs, jobID)
	return nil
}

var _ queue.Gateway = (*fakeGateway)(nil)

type fakeCache struct {
	entries map[string]string
	ttls    map[string]time.Duration
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *fakeCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.entries[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *fakeCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, ok := c.entries[key]
	return val, ok, nil
}

type fakeLimiter struct {
	allow bool
	calls int
}

func (l *fakeLimiter) Allow(ctx context.Context, campaignID, limit int, window time.Duration) bool {
	l.calls++
	return l.allow
}

type sentMessage struct {
	ConnectionRef string
	Address       string
	Message       transport.Message
}

type fakeTransport struct {
	sent []sentMessage
	err  error
}

func (t *fakeTransport) Send(ctx context.Context, connectionRef, address string, msg transport.Message) error {
	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, sentMessage{ConnectionRef: connectionRef, Address: address, Message: msg})
	return nil
}

var _ transport.Transport = (*fakeTransport)(nil)

type fakeResolver struct {
	addresses map[int64]string
}

func (r *fakeResolver) AddressFor(ctx context.Context, contactID int64) (string, error) {
	addr, ok := r.addresses[contactID]
	if !ok {
		return "", fmt.Errorf("unknown contact %d", contactID)
	}
	return addr, nil
}
