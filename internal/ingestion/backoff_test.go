package ingestion

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/briefing/pkg/types"
)

func TestBackoff_Delay(t *testing.T) {
	b := DefaultBackoff()
	tests := []struct {
		errors int
		want   time.Duration
	}{
		{0, 0},
		{1, time.Minute},
		{2, 4 * time.Minute},
		{3, 9 * time.Minute},
		{10, 100 * time.Minute},
		{11, 2 * time.Hour},
		{1000, 2 * time.Hour},
		{1 << 40, 2 * time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Delay(tt.errors), "errorCount=%d", tt.errors)
	}
}

func TestBackoff_FailureThenSuccess(t *testing.T) {
	b := DefaultBackoff()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	q := &types.IngestionQuery{ID: "q1"}

	b.Failure(q, now, errors.New("timeout"))
	assert.Equal(t, 1, q.ErrorCount)
	assert.Equal(t, "timeout", q.LastError)
	assert.Equal(t, now.Add(time.Minute), q.NextPollAt)

	b.Failure(q, now, errors.New("timeout again"))
	assert.Equal(t, 2, q.ErrorCount)
	assert.Equal(t, now.Add(4*time.Minute), q.NextPollAt)

	b.Success(q, now)
	assert.Zero(t, q.ErrorCount)
	assert.Empty(t, q.LastError)
	assert.Equal(t, now.Add(30*time.Minute), q.NextPollAt)
	require.NotNil(t, q.LastSuccessAt)
	assert.Equal(t, now, *q.LastSuccessAt)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ＦｅｄＮｏｗ", "FedNow"},
		{"ﬁntech", "fintech"},
		{"  a\t\tb\n c  ", "a b c"},
		{"\u0007bell", "bell"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "%q", tt.in)
	}
}

func TestNormalizeSummary(t *testing.T) {
	assert.Equal(t, "Hello world & more", NormalizeSummary("<p>Hello&nbsp;<b>world</b> &amp; more</p>"))
	assert.Equal(t, "plain", NormalizeSummary("plain"))

	long := NormalizeSummary(strings.Repeat("a", 1500))
	assert.Equal(t, maxSummaryRunes+1, len([]rune(long)))
	assert.True(t, strings.HasSuffix(long, "…"))
}
