package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/musicgen-worker/internal/domain"
	"github.com/hochfrequenz/musicgen-worker/internal/objectstore"
)

func TestBuild_EmptyIsHeaderOnly(t *testing.T) {
	assert.Equal(t, Header+"\n", Build(nil))

	failed := []domain.JobResult{{DestinationKey: "a.wav", Success: false, ErrorMessage: "upload failed"}}
	assert.Equal(t, Header+"\n", Build(failed))
}

func TestBuild_RowsAndTotal(t *testing.T) {
	results := []domain.JobResult{
		{DestinationKey: "a_1.wav", Prompt: "calm", RequestedDurationS: 30, GenerationTimeS: 10, EstimatedCostUSD: 1.5, Success: true},
		{DestinationKey: "b_2.wav", Prompt: "broken", RequestedDurationS: 30, GenerationTimeS: 99, EstimatedCostUSD: 9, Success: false},
		{DestinationKey: "c_3.wav", Prompt: `say "hi"`, RequestedDurationS: 45, GenerationTimeS: 20.456, EstimatedCostUSD: 2.5, Success: true},
	}

	want := strings.Join([]string{
		Header,
		`"a_1.wav","calm",30,10.00,1.5000`,
		`"c_3.wav","say ""hi""",45,20.46,2.5000`,
		"",
		"TOTAL,2 files,,30.46,4.0000",
	}, "\n")
	assert.Equal(t, want, Build(results))
}

func TestBuild_SkippedRowsHaveZeroCost(t *testing.T) {
	results := []domain.JobResult{
		{DestinationKey: "a_1.wav", Prompt: "calm", RequestedDurationS: 30, Success: true, Skipped: true},
	}
	out := Build(results)
	assert.Contains(t, out, `"a_1.wav","calm",30,0.00,0.0000`)
	assert.True(t, strings.HasSuffix(out, "TOTAL,1 files,,0.00,0.0000"))
}

func TestTimestampedKey(t *testing.T) {
	now := time.Date(2024, 9, 7, 12, 34, 56, 0, time.UTC)
	assert.Equal(t, "cost_report_20240907_123456.csv", TimestampedKey(now))
}

func TestPublish_UploadsTimestampedThenLatest(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := objectstore.NewLocal(root)
	require.NoError(t, err)

	now := time.Date(2024, 9, 7, 12, 34, 56, 0, time.UTC)
	key, err := Publish(ctx, store, "content", now)
	require.NoError(t, err)
	assert.Equal(t, "cost_report_20240907_123456.csv", key)

	for _, k := range []string{key, LatestKey} {
		data, err := os.ReadFile(filepath.Join(root, k))
		require.NoError(t, err)
		assert.Equal(t, "content", string(data))
	}
}

type mockStore struct {
	mock.Mock
	objectstore.Store
}

func (m *mockStore) Upload(ctx context.Context, key, localPath, contentType string) error {
	args := m.Called(ctx, key, localPath, contentType)
	return args.Error(0)
}

func TestPublish_LatestOnlyAfterTimestamped(t *testing.T) {
	store := new(mockStore)
	store.On("Upload", mock.Anything, mock.MatchedBy(func(k string) bool { return k != LatestKey }), mock.Anything, ContentType).
		Return(errors.New("access denied"))

	_, err := Publish(context.Background(), store, "content", time.Now())
	require.Error(t, err)
	store.AssertNumberOfCalls(t, "Upload", 1)
	store.AssertNotCalled(t, "Upload", mock.Anything, LatestKey, mock.Anything, mock.Anything)
}

func TestSummarize(t *testing.T) {
	results := []domain.JobResult{
		{DestinationKey: "a", Success: true, GenerationTimeS: 60, EstimatedCostUSD: 0.5},
		{DestinationKey: "b", Success: true, Skipped: true},
		{DestinationKey: "c", Success: false, ErrorMessage: "upload failed", EstimatedCostUSD: 3},
	}
	s := Summarize(results)

	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.Failed)
	assert.InDelta(t, 60.0, s.TotalTimeS, 1e-9)
	assert.InDelta(t, 0.5, s.TotalCostUSD, 1e-9)
	require.Len(t, s.Failures, 1)
	assert.Equal(t, Failure{Key: "c", Message: "upload failed"}, s.Failures[0])

	s.ReportUploaded = true
	s.ReportKey = "cost_report_x.csv"
	out := s.Render()
	assert.Contains(t, out, "Successful jobs: 2/3 (1 already present)")
	assert.Contains(t, out, "Total generation time: 60.0s (1.0m)")
	assert.Contains(t, out, "Estimated total cost: $0.500")
	assert.Contains(t, out, "Cost report uploaded: yes (cost_report_x.csv)")
	assert.Contains(t, out, "  - c: upload failed")
}

func TestSummary_RenderReportNotUploaded(t *testing.T) {
	out := Summary{}.Render()
	assert.Contains(t, out, "Cost report uploaded: NO")
	assert.NotContains(t, out, "Failed jobs")
}
