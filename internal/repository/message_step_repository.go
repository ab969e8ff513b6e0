package repository

import (
	"database/sql"
	"time"

	"github.com/dripflow/dripflow-backend/internal/model"
)

type MessageStepRepositoryInterface interface {
	Create(s *model.MessageStep) error
	ListByCampaign(campaignID int) ([]*model.MessageStep, error)
	NextStep(campaignID, minOrder int) (*model.MessageStep, error)
}

type MessageStepRepository struct {
	DB *sql.DB
}

const stepColumns = `id, campaign_id, step_order, body, delay_minutes, type, media_url, created_at`

func scanStep(row interface{ Scan(...any) error }) (*model.MessageStep, error) {
	var s model.MessageStep
	err := row.Scan(&s.ID, &s.CampaignID, &s.StepOrder, &s.Body, &s.DelayMinutes,
		&s.Type, &s.MediaURL, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *MessageStepRepository) Create(s *model.MessageStep) error {
	s.CreatedAt = time.Now()
	if s.Type == "" {
		s.Type = model.StepTypeText
	}
	query := `
        INSERT INTO message_steps (campaign_id, step_order, body, delay_minutes, type, media_url, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `
	return r.DB.QueryRow(query, s.CampaignID, s.StepOrder, s.Body, s.DelayMinutes,
		s.Type, s.MediaURL, s.CreatedAt).Scan(&s.ID)
}

func (r *MessageStepRepository) ListByCampaign(campaignID int) ([]*model.MessageStep, error) {
	query := `SELECT ` + stepColumns + ` FROM message_steps WHERE campaign_id=$1 ORDER BY step_order ASC`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := []*model.MessageStep{}
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, nil
}

// NextStep returns the step with the smallest order >= minOrder, or nil when
// the sequence is exhausted. Orders need not be contiguous, so this is a
// ceiling lookup rather than an exact match.
func (r *MessageStepRepository) NextStep(campaignID, minOrder int) (*model.MessageStep, error) {
	query := `
        SELECT ` + stepColumns + `
        FROM message_steps
        WHERE campaign_id=$1 AND step_order >= $2
        ORDER BY step_order ASC
        LIMIT 1
    `
	s, err := scanStep(r.DB.QueryRow(query, campaignID, minOrder))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

var _ MessageStepRepositoryInterface = (*MessageStepRepository)(nil)
