package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	appErrors "github.com/dripflow/dripflow-backend/internal/errors"
	"github.com/dripflow/dripflow-backend/internal/model"
)

type SubscriberRepositoryInterface interface {
	Create(s *model.Subscriber) (*model.Subscriber, bool, error)
	GetByID(id int) (*model.Subscriber, error)
	GetByAddress(campaignID int, address string) (*model.Subscriber, error)
	ListActiveByCampaign(campaignID int) ([]*model.Subscriber, error)
	MarkProgress(id, order int, sentAt time.Time) error
	UpdateStatus(id int, status string) error
	MergeMetadata(id int, metadata map[string]string) error
	Delete(id int) error
	DeleteByAddress(campaignID int, address string) error
}

type SubscriberRepository struct {
	DB *sql.DB
}

const subscriberColumns = `id, campaign_id, owner, contact_id, address, status,
        last_message_order_sent, last_message_sent_at, metadata, created_at, updated_at`

func scanSubscriber(row interface{ Scan(...any) error }) (*model.Subscriber, error) {
	var s model.Subscriber
	var rawMeta []byte
	err := row.Scan(&s.ID, &s.CampaignID, &s.Owner, &s.ContactID, &s.Address, &s.Status,
		&s.LastMessageOrderSent, &s.LastMessageSentAt, &rawMeta, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(rawMeta) > 0 {
		if err := json.Unmarshal(rawMeta, &s.Metadata); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// Create is an idempotent enrollment: if a subscriber with the same canonical
// address already exists for the campaign, the existing row is returned and
// the second value is false.
func (r *SubscriberRepository) Create(s *model.Subscriber) (*model.Subscriber, bool, error) {
	existing, err := r.GetByAddress(s.CampaignID, s.Address)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	s.CreatedAt = time.Now()
	if s.Status == "" {
		s.Status = model.SubscriberStatusActive
	}
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return nil, false, err
	}
	if s.Metadata == nil {
		meta = []byte(`{}`)
	}

	query := `
        INSERT INTO subscribers (campaign_id, owner, contact_id, address, status, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `
	err = r.DB.QueryRow(query, s.CampaignID, s.Owner, s.ContactID, s.Address, s.Status, meta, s.CreatedAt).Scan(&s.ID)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

func (r *SubscriberRepository) GetByID(id int) (*model.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE id=$1`
	s, err := scanSubscriber(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewSubscriberNotFound(id)
		}
		return nil, err
	}
	return s, nil
}

func (r *SubscriberRepository) GetByAddress(campaignID int, address string) (*model.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE campaign_id=$1 AND address=$2`
	s, err := scanSubscriber(r.DB.QueryRow(query, campaignID, address))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func (r *SubscriberRepository) ListActiveByCampaign(campaignID int) ([]*model.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE campaign_id=$1 AND status=$2 ORDER BY id ASC`
	rows, err := r.DB.Query(query, campaignID, model.SubscriberStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []*model.Subscriber{}
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, nil
}

// MarkProgress records a successful delivery. The WHERE guard keeps
// last_message_order_sent monotonic even if a stale job fires late.
func (r *SubscriberRepository) MarkProgress(id, order int, sentAt time.Time) error {
	query := `
        UPDATE subscribers
        SET last_message_order_sent=$1, last_message_sent_at=$2, updated_at=NOW()
        WHERE id=$3 AND (last_message_order_sent IS NULL OR last_message_order_sent < $1)
    `
	_, err := r.DB.Exec(query, order, sentAt, id)
	return err
}

func (r *SubscriberRepository) UpdateStatus(id int, status string) error {
	query := `UPDATE subscribers SET status=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, status, id)
	return err
}

// MergeMetadata is a shallow union: existing keys survive, incoming keys win.
func (r *SubscriberRepository) MergeMetadata(id int, metadata map[string]string) error {
	if len(metadata) == 0 {
		return nil
	}
	patch, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	query := `UPDATE subscribers SET metadata = COALESCE(metadata, '{}'::jsonb) || $1::jsonb, updated_at=NOW() WHERE id=$2`
	_, err = r.DB.Exec(query, patch, id)
	return err
}

func (r *SubscriberRepository) Delete(id int) error {
	_, err := r.DB.Exec(`DELETE FROM subscribers WHERE id=$1`, id)
	return err
}

func (r *SubscriberRepository) DeleteByAddress(campaignID int, address string) error {
	_, err := r.DB.Exec(`DELETE FROM subscribers WHERE campaign_id=$1 AND address=$2`, campaignID, address)
	return err
}

var _ SubscriberRepositoryInterface = (*SubscriberRepository)(nil)
