package repository

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dripflow/dripflow-backend/internal/model"
)

func TestAppendWritesRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO delivery_logs .+ ON CONFLICT \(campaign_id, subscriber_id, message_order\) DO NOTHING`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	r := &DeliveryLogRepository{DB: db}
	l := &model.DeliveryLog{CampaignID: 1, SubscriberID: 5, MessageID: 10, MessageOrder: 1, SentAt: time.Now()}
	created, err := r.Append(l)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, l.ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendDuplicateDeliveryIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// ON CONFLICT DO NOTHING returns no row for the duplicate.
	mock.ExpectQuery(`INSERT INTO delivery_logs`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	r := &DeliveryLogRepository{DB: db}
	created, err := r.Append(&model.DeliveryLog{CampaignID: 1, SubscriberID: 5, MessageID: 10, MessageOrder: 1, SentAt: time.Now()})
	require.NoError(t, err, "a duplicate execution is reported, not failed")
	assert.False(t, created)

	assert.NoError(t, mock.ExpectationsWereMet())
}
