package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warlab/hr-datamart/internal/feed"
	"github.com/warlab/hr-datamart/internal/model"
)

func TestFormatRuns(t *testing.T) {
	completed := time.Date(2024, 3, 1, 9, 12, 30, 0, time.UTC)
	runs := []model.Run{
		{
			RunID:       "0123456789abcdef",
			BatchID:     "batch_20240301T090000",
			DataDate:    model.MustDate("2024-03-01"),
			Status:      model.RunStatusComplete,
			StartedAt:   time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
			CompletedAt: &completed,
		},
		{
			RunID:     "fedcba9876543210",
			BatchID:   "batch_20240302T090000",
			DataDate:  model.MustDate("2024-03-02"),
			Status:    model.RunStatusFailed,
			StartedAt: time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
			Error:     "staging load failed",
		},
	}

	var buf bytes.Buffer
	formatRuns(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "01234567")
	assert.NotContains(t, out, "0123456789abcdef")
	assert.Contains(t, out, "12m30s")
	assert.Contains(t, out, "staging load failed")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "01234567", truncateID("0123456789"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestFormatFeeds(t *testing.T) {
	var buf bytes.Buffer
	formatFeeds(&buf, feed.DefaultRegistry().All())
	out := buf.String()

	assert.Contains(t, out, "worker_job")
	assert.Contains(t, out, "worker_org_company")
	assert.Contains(t, out, "worker_comp_events")
}
