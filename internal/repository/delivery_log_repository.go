package repository

import (
	"database/sql"
	"time"

	"github.com/dripflow/dripflow-backend/internal/model"
)

type DeliveryLogRepositoryInterface interface {
	Append(l *model.DeliveryLog) (bool, error)
	ListByCampaign(campaignID int) ([]*model.DeliveryLog, error)
	CountByCampaign(campaignID int) (int, error)
}

type DeliveryLogRepository struct {
	DB *sql.DB
}

// Append writes one delivery row. The unique (campaign_id, subscriber_id,
// message_order) index plus ON CONFLICT DO NOTHING makes a double execution of
// the same job a no-op; the return value reports whether a row was written.
func (r *DeliveryLogRepository) Append(l *model.DeliveryLog) (bool, error) {
	if l.SentAt.IsZero() {
		l.SentAt = time.Now()
	}
	query := `
        INSERT INTO delivery_logs (campaign_id, subscriber_id, message_id, message_order, sent_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (campaign_id, subscriber_id, message_order) DO NOTHING
        RETURNING id
    `
	err := r.DB.QueryRow(query, l.CampaignID, l.SubscriberID, l.MessageID, l.MessageOrder, l.SentAt).Scan(&l.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *DeliveryLogRepository) ListByCampaign(campaignID int) ([]*model.DeliveryLog, error) {
	query := `
        SELECT id, campaign_id, subscriber_id, message_id, message_order, sent_at
        FROM delivery_logs
        WHERE campaign_id=$1
        ORDER BY sent_at ASC
    `
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []*model.DeliveryLog{}
	for rows.Next() {
		var l model.DeliveryLog
		if err := rows.Scan(&l.ID, &l.CampaignID, &l.SubscriberID, &l.MessageID, &l.MessageOrder, &l.SentAt); err != nil {
			return nil, err
		}
		logs = append(logs, &l)
	}
	return logs, nil
}

func (r *DeliveryLogRepository) CountByCampaign(campaignID int) (int, error) {
	var count int
	err := r.DB.QueryRow(`SELECT COUNT(*) FROM delivery_logs WHERE campaign_id=$1`, campaignID).Scan(&count)
	return count, err
}

var _ DeliveryLogRepositoryInterface = (*DeliveryLogRepository)(nil)
