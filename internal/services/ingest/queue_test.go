package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	queue string
	body  []byte
	err   error
}

func (p *fakePublisher) Publish(queueName string, body []byte) error {
	p.queue, p.body = queueName, body
	return p.err
}

func TestQueue_Enqueue(t *testing.T) {
	f := newFixture(t)
	pub := &fakePublisher{}
	q := NewQueue(f.versions, pub, "")

	task, err := q.Enqueue(context.Background(), Request{Collection: "alerts", BaseProcver: "bpv1", Cutoff: t0})
	require.NoError(t, err)
	assert.Equal(t, DefaultQueue, pub.queue)

	var got models.IngestTask
	require.NoError(t, json.Unmarshal(pub.body, &got))
	assert.Equal(t, "alerts", got.Collection)
	assert.True(t, got.Cutoff.Equal(t0))
	assert.Equal(t, Request{Collection: "alerts", BaseProcver: "bpv1", Cutoff: task.Cutoff}, RequestOf(*task))
}

func TestQueue_EnqueueErrors(t *testing.T) {
	f := newFixture(t)
	pub := &fakePublisher{}
	q := NewQueue(f.versions, pub, "ingest")

	_, err := q.Enqueue(context.Background(), Request{Collection: "alerts", BaseProcver: "nope"})
	assert.True(t, xerr.Is(err, xerr.ErrUnknownVersion))
	assert.Nil(t, pub.body)

	pub.err = errors.New("channel closed")
	_, err = q.Enqueue(context.Background(), Request{Collection: "alerts", BaseProcver: "bpv1"})
	assert.Equal(t, xerr.MQErrorCode, xerr.CodeOf(err))
}
