package repository

import (
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/dripflow/dripflow-backend/internal/errors"
	"github.com/dripflow/dripflow-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	GetByID(id int) (*model.Campaign, error)
	ListCampaigns(offset, limit int, owner, status string) ([]*model.Campaign, int, error)
	UpdateStatus(campaignID int, status string) error
	UpdateRateLimit(campaignID int, limit *int, windowMS *int64) error
	UpdatePriority(campaignID int, priority string) error
	Delete(campaignID int) error
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, owner, name, description, connection_ref, segment_ref, status,
        message_rate_limit, rate_limit_window_ms, priority, created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(&c.ID, &c.Owner, &c.Name, &c.Description, &c.ConnectionRef, &c.SegmentRef,
		&c.Status, &c.MessageRateLimit, &c.RateLimitWindowMS, &c.Priority, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	if c.Priority == "" {
		c.Priority = model.PriorityNormal
	}
	query := `
        INSERT INTO campaigns (owner, name, description, connection_ref, segment_ref, status,
            message_rate_limit, rate_limit_window_ms, priority, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id
    `
	return r.DB.QueryRow(query, c.Owner, c.Name, c.Description, c.ConnectionRef, c.SegmentRef,
		c.Status, c.MessageRateLimit, c.RateLimitWindowMS, c.Priority, c.CreatedAt).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, owner, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`
	args := []any{}
	argPos := 1

	if owner != "" {
		query += fmt.Sprintf(" AND owner=$%d", argPos)
		args = append(args, owner)
		argPos++
	}
	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	argsCount := []any{}
	argPosCount := 1
	if owner != "" {
		countQuery += fmt.Sprintf(" AND owner=$%d", argPosCount)
		argsCount = append(argsCount, owner)
		argPosCount++
	}
	if status != "" {
		countQuery += fmt.Sprintf(" AND status=$%d", argPosCount)
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *CampaignRepository) UpdateStatus(campaignID int, status string) error {
	query := `UPDATE campaigns SET status=$1, updated_at=$2 WHERE id=$3`
	_, err := r.DB.Exec(query, status, time.Now(), campaignID)
	return err
}

// UpdateRateLimit changes the campaign's rate limit fields only. Already
// enqueued jobs are untouched; the new limit applies on the next delivery.
func (r *CampaignRepository) UpdateRateLimit(campaignID int, limit *int, windowMS *int64) error {
	query := `UPDATE campaigns SET message_rate_limit=$1, rate_limit_window_ms=$2, updated_at=NOW() WHERE id=$3`
	_, err := r.DB.Exec(query, limit, windowMS, campaignID)
	return err
}

func (r *CampaignRepository) UpdatePriority(campaignID int, priority string) error {
	query := `UPDATE campaigns SET priority=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, priority, campaignID)
	return err
}

// Delete removes the campaign and everything it owns. Logs, subscribers and
// steps go first so the campaign row is the last thing standing.
func (r *CampaignRepository) Delete(campaignID int) error {
	statements := []string{
		`DELETE FROM delivery_logs WHERE campaign_id=$1`,
		`DELETE FROM subscribers WHERE campaign_id=$1`,
		`DELETE FROM message_steps WHERE campaign_id=$1`,
		`DELETE FROM campaigns WHERE id=$1`,
	}
	for _, stmt := range statements {
		if _, err := r.DB.Exec(stmt, campaignID); err != nil {
			return err
		}
	}
	return nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
