package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/config"
	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/3Eeeecho/go-fastdb/internal/services/ingest"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngest struct {
	errs  []error
	calls int
	last  ingest.Request
}

func (f *fakeIngest) Run(_ context.Context, req ingest.Request) (*ingest.Report, error) {
	f.calls++
	f.last = req
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &ingest.Report{Collection: req.Collection, Alerts: 3}, nil
}

type fakeConsumer struct {
	declared string
	handler  func(amqp.Delivery)
}

func (c *fakeConsumer) DeclareQueue(name string) (amqp.Queue, error) {
	c.declared = name
	return amqp.Queue{Name: name}, nil
}

func (c *fakeConsumer) Consume(_ string, handler func(amqp.Delivery)) error {
	c.handler = handler
	return nil
}

type acker struct {
	acked, nacked, requeued bool
}

func (a *acker) Ack(uint64, bool) error {
	a.acked = true
	return nil
}

func (a *acker) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}

func (a *acker) Reject(_ uint64, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		RabbitMQ: config.RabbitMQConfig{IngestQueue: "ingest"},
		Ingest:   config.IngestConfig{MaxRetries: 2, RetryMaxInterval: time.Millisecond},
	}
}

func delivery(t *testing.T, a *acker, redelivered bool) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(models.IngestTask{Collection: "alerts", BaseProcessingVersion: "bpv1"})
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: a, DeliveryTag: 1, Body: body, Redelivered: redelivered}
}

func TestIngestWorker_StartAndAck(t *testing.T) {
	consumer := &fakeConsumer{}
	svc := &fakeIngest{}
	require.NoError(t, StartAllWorkers(testConfig(), consumer, svc))
	assert.Equal(t, "ingest", consumer.declared)
	require.NotNil(t, consumer.handler)

	a := &acker{}
	consumer.handler(delivery(t, a, false))
	assert.True(t, a.acked)
	assert.Equal(t, "alerts", svc.last.Collection)
	assert.Equal(t, "bpv1", svc.last.BaseProcver)
}

func TestIngestWorker_RetriesTransientErrors(t *testing.T) {
	svc := &fakeIngest{errs: []error{xerr.ErrStagingError, xerr.ErrDatabaseError}}
	w := NewIngestWorker(&fakeConsumer{}, svc, testConfig())

	a := &acker{}
	w.Handle(delivery(t, a, false))
	assert.True(t, a.acked)
	assert.Equal(t, 3, svc.calls)
}

func TestIngestWorker_RequeueOnce(t *testing.T) {
	failing := []error{xerr.ErrDatabaseError, xerr.ErrDatabaseError, xerr.ErrDatabaseError}
	w := NewIngestWorker(&fakeConsumer{}, &fakeIngest{errs: append([]error(nil), failing...)}, testConfig())
	a := &acker{}
	w.Handle(delivery(t, a, false))
	assert.True(t, a.nacked)
	assert.True(t, a.requeued)

	w = NewIngestWorker(&fakeConsumer{}, &fakeIngest{errs: append([]error(nil), failing...)}, testConfig())
	a = &acker{}
	w.Handle(delivery(t, a, true))
	assert.True(t, a.nacked)
	assert.False(t, a.requeued)
}

func TestIngestWorker_DropsPermanentErrors(t *testing.T) {
	svc := &fakeIngest{errs: []error{xerr.ErrUnknownVersion}}
	w := NewIngestWorker(&fakeConsumer{}, svc, testConfig())
	a := &acker{}
	w.Handle(delivery(t, a, false))
	assert.Equal(t, 1, svc.calls)
	assert.True(t, a.nacked)
	assert.False(t, a.requeued)

	a = &acker{}
	w.Handle(amqp.Delivery{Acknowledger: a, Body: []byte("{not json")})
	assert.True(t, a.nacked)
	assert.False(t, a.requeued)
}
