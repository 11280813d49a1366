package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/decl-radar/backend/internal/models"
)

type stubWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (s *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msgs...)
	return nil
}

func (s *stubWriter) Close() error {
	s.closed = true
	return nil
}

func TestPublishKeysByDeclaration(t *testing.T) {
	w := &stubWriter{}
	p := newPublisher(w, "run-1")
	fixed := time.Date(2025, time.May, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	row := models.Row{DeclarationID: "X1", Workplace: "НБУ", Related: true, Reason: "country == 180"}
	require.NoError(t, p.Publish(context.Background(), row))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	require.Equal(t, "X1", string(msg.Key))

	var evt Flagged
	require.NoError(t, json.Unmarshal(msg.Value, &evt))
	require.Equal(t, "run-1", evt.RunID)
	require.Equal(t, row, evt.Row)
	require.Equal(t, fixed, evt.Emitted)
	require.NotEmpty(t, evt.EventID)

	require.NoError(t, p.Close())
	require.True(t, w.closed)
}

func TestPublishWrapsWriterError(t *testing.T) {
	w := &stubWriter{err: errors.New("broker down")}
	p := newPublisher(w, "run-1")

	err := p.Publish(context.Background(), models.Row{DeclarationID: "X9"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "X9")
	require.Contains(t, err.Error(), "broker down")
}
