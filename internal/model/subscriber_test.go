package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextOrder(t *testing.T) {
	s := &Subscriber{}
	assert.Equal(t, 1, s.NextOrder(), "a fresh subscriber is owed the first step")

	three := 3
	s.LastMessageOrderSent = &three
	assert.Equal(t, 4, s.NextOrder())
}

func TestMergeMetadata(t *testing.T) {
	dst := map[string]string{"source": "form", "plan": "free"}
	src := map[string]string{"plan": "pro", "ref": "friend"}

	merged := MergeMetadata(dst, src)
	assert.Equal(t, map[string]string{"source": "form", "plan": "pro", "ref": "friend"}, merged)
	assert.Equal(t, "free", dst["plan"], "inputs are not mutated")

	assert.Equal(t, dst, MergeMetadata(dst, nil))
}

func TestContactRefUnmarshalNumericID(t *testing.T) {
	var ref ContactRef
	require.NoError(t, json.Unmarshal([]byte(`1001`), &ref))
	require.NotNil(t, ref.ContactID)
	assert.Equal(t, int64(1001), *ref.ContactID)
	assert.Empty(t, ref.Address)
}

func TestContactRefUnmarshalAddress(t *testing.T) {
	var ref ContactRef
	require.NoError(t, json.Unmarshal([]byte(`"+15550100001"`), &ref))
	assert.Nil(t, ref.ContactID)
	assert.Equal(t, "+15550100001", ref.Address)
}

func TestContactRefUnmarshalRejectsObjects(t *testing.T) {
	var ref ContactRef
	assert.Error(t, json.Unmarshal([]byte(`{"id": 1}`), &ref))
}

func TestDeliveryJobID(t *testing.T) {
	j := DeliveryJob{CampaignID: 1, SubscriberID: 5, MessageOrder: 3}
	assert.Equal(t, "1:5:3", j.JobID())

	j.Resume = true
	assert.Equal(t, "1:5:3:resume", j.JobID(), "resume jobs never collide with naturally scheduled ones")
}
