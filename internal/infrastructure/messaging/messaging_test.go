package messaging

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/fincore-risk/internal/config"
	"github.com/turtacn/fincore-risk/internal/domain/models"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func sampleAlerts() []models.AlertEntry {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []models.AlertEntry{
		{ID: "a1", EntityID: "E1", Name: "Overall risk entered Severe band", Rule: constants.AlertRuleBandCrossing, Severity: constants.SeverityHigh, Date: at},
		{ID: "a2", EntityID: "E2", Name: "market risk breach", Rule: constants.AlertRuleDimensionBreach, Dimension: constants.DimensionMarket, Severity: constants.SeverityHigh, Date: at},
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, "risk-alerts", logger.NewNoopLogger())

	require.NoError(t, p.Publish(context.Background(), sampleAlerts()))
	require.Len(t, w.msgs, 2)

	assert.Equal(t, "E1", string(w.msgs[0].Key))
	assert.Equal(t, "E2", string(w.msgs[1].Key))
	assert.Equal(t, "dimension_breach", string(w.msgs[1].Headers[0].Value))

	var decoded models.AlertEntry
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &decoded))
	assert.Equal(t, sampleAlerts()[1], decoded)

	require.NoError(t, p.Publish(context.Background(), nil))
	assert.Len(t, w.msgs, 2)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteFailure(t *testing.T) {
	p := newKafkaPublisher(&fakeWriter{err: stderrors.New("broker down")}, "risk-alerts", logger.NewNoopLogger())

	err := p.Publish(context.Background(), sampleAlerts())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, constants.ErrCodeServerError))
}

func TestNewKafkaPublisher_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(config.KafkaConfig{Topic: "t"}, logger.NewNoopLogger())
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidConfig))

	p, err := NewKafkaPublisher(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"}, logger.NewNoopLogger())
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestAlertConsumer_Run(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, newKafkaPublisher(w, "t", logger.NewNoopLogger()).Publish(context.Background(), sampleAlerts()))

	r := &fakeReader{}
	for i, m := range w.msgs {
		m.Offset = int64(i)
		r.msgs = append(r.msgs, m)
	}
	r.msgs = append(r.msgs, kafka.Message{Offset: 2, Value: []byte("not json")})

	var seen []string
	c := newAlertConsumer(r, logger.NewNoopLogger())
	err := c.Run(context.Background(), func(_ context.Context, a models.AlertEntry) error {
		if a.EntityID == "E2" {
			return stderrors.New("notifier down")
		}
		seen = append(seen, a.ID)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a1"}, seen)
	// The failed alert stays uncommitted; the malformed one is skipped.
	assert.Equal(t, []int64{0, 2}, r.committed)
}
