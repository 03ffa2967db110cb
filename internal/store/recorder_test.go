package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cropsense/internal/observability"
)

func TestRecorder_Saves(t *testing.T) {
	st := newTestSQLiteStore(t)
	m := observability.NewMetricsForTesting()
	r := NewRecorder(st, m)
	ctx := context.Background()

	assert.True(t, r.Enabled())
	r.Record(ctx, testOutcome("x", time.Now(), ptr(0.3)), nil, testOutcome("y", time.Now(), nil))

	out, err := st.ListOutcomes(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.HistoryWrites.WithLabelValues("ok")))
}

func TestRecorder_FailureIsSwallowed(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	m := observability.NewMetricsForTesting()

	mock.ExpectExec(`INSERT INTO outcomes`).
		WithArgs(anyArgs(outcomeArgCount)...).
		WillReturnError(errors.New("disk full"))

	assert.NotPanics(t, func() {
		NewRecorder(s, m).Record(context.Background(), testOutcome("x", time.Now(), nil))
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HistoryWrites.WithLabelValues("error")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_Disabled(t *testing.T) {
	var nilRecorder *Recorder
	assert.False(t, nilRecorder.Enabled())
	assert.Nil(t, nilRecorder.Store())
	nilRecorder.Record(context.Background(), testOutcome("x", time.Now(), nil))

	r := NewRecorder(nil, nil)
	assert.False(t, r.Enabled())
	r.Record(context.Background(), testOutcome("x", time.Now(), nil))
}
