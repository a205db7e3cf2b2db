package runner

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/hochfrequenz/musicgen-worker/internal/domain"
	"github.com/hochfrequenz/musicgen-worker/internal/jobkey"
	"github.com/hochfrequenz/musicgen-worker/internal/objectstore"
)

// MockStore is a mock implementation of objectstore.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) Upload(ctx context.Context, key, localPath, contentType string) error {
	args := m.Called(ctx, key, localPath, contentType)
	return args.Error(0)
}

func (m *MockStore) BucketExists(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) List(ctx context.Context, prefix string) ([]objectstore.Object, error) {
	args := m.Called(ctx, prefix)
	if objs, ok := args.Get(0).([]objectstore.Object); ok {
		return objs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) Download(ctx context.Context, key, localPath string) error {
	args := m.Called(ctx, key, localPath)
	return args.Error(0)
}

// fakeGenerator renders silence-ish samples and records every request
type fakeGenerator struct {
	rate     int
	calls     []int
	failWith  map[string]error
	panicWith map[string]bool
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{rate: 100, failWith: map[string]error{}}
}

func (g *fakeGenerator) SampleRate() int { return g.rate }

func (g *fakeGenerator) Generate(ctx context.Context, prompt string, seconds int) ([]float32, error) {
	g.calls = append(g.calls, seconds)
	if g.panicWith[prompt] {
		var broken map[string]int
		broken[prompt] = seconds
	}
	if err, ok := g.failWith[prompt]; ok {
		return nil, err
	}
	out := make([]float32, seconds*g.rate)
	for i := range out {
		out[i] = 0.1
	}
	return out, nil
}

// steppingClock advances by step on every reading
func steppingClock(step time.Duration) func() time.Time {
	t := time.Date(2024, 9, 7, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		now := t
		t = t.Add(step)
		return now
	}
}

func newLocalStore(t *testing.T) *objectstore.Local {
	t.Helper()
	store, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	return store
}

func testOptions(t *testing.T) Options {
	return Options{HourlyRateUSD: 1.0, TempDir: t.TempDir(), now: steppingClock(time.Second)}
}

func TestProcess_SkipsExistingObject(t *testing.T) {
	job := domain.Job{Prompt: "ambient drone", DurationSeconds: 10, BaseName: "a.wav"}
	key := jobkey.ForJob(job)

	store := new(MockStore)
	store.On("Exists", mock.Anything, key).Return(true, nil)
	gen := newFakeGenerator()

	r := New(testOptions(t), gen, store, arbor.NewNoOpLogger())
	out := r.Process(context.Background(), job)

	success, ok := out.(Success)
	require.True(t, ok, "expected Success, got %T", out)
	assert.True(t, success.Skipped)

	res := out.Result()
	assert.True(t, res.Success)
	assert.True(t, res.Skipped)
	assert.Equal(t, domain.StateSkipped, res.State)
	assert.Equal(t, key, res.DestinationKey)
	assert.Zero(t, res.GenerationTimeS)
	assert.Zero(t, res.EstimatedCostUSD)
	assert.Empty(t, gen.calls)
	store.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_ExistsErrorTreatedAsAbsent(t *testing.T) {
	job := domain.Job{Prompt: "p", DurationSeconds: 5, BaseName: "a.wav"}
	key := jobkey.ForJob(job)

	store := new(MockStore)
	store.On("Exists", mock.Anything, key).Return(false, errors.New("403 forbidden"))
	store.On("Upload", mock.Anything, key, mock.Anything, domain.AudioContentType).Return(nil)
	gen := newFakeGenerator()

	r := New(testOptions(t), gen, store, arbor.NewNoOpLogger())
	res := r.Process(context.Background(), job).Result()

	assert.True(t, res.Success)
	assert.False(t, res.Skipped)
	assert.Equal(t, []int{5}, gen.calls)
	store.AssertExpectations(t)
}

func TestProcess_UploadFailure(t *testing.T) {
	job := domain.Job{Prompt: "p", DurationSeconds: 5, BaseName: "a.wav"}

	store := new(MockStore)
	store.On("Exists", mock.Anything, mock.Anything).Return(false, nil)
	store.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection reset"))

	r := New(testOptions(t), newFakeGenerator(), store, arbor.NewNoOpLogger())
	out := r.Process(context.Background(), job)

	failure, ok := out.(Failure)
	require.True(t, ok, "expected Failure, got %T", out)
	assert.Equal(t, domain.StateUploading, failure.Stage)

	var stageErr *StageError
	require.True(t, errors.As(failure.Err, &stageErr))
	assert.Equal(t, domain.StateUploading, stageErr.Stage)

	res := out.Result()
	assert.False(t, res.Success)
	assert.Equal(t, "upload failed", res.ErrorMessage)
	assert.Equal(t, domain.StateFailed, res.State)
	assert.Greater(t, res.GenerationTimeS, 0.0)
}

func TestProcess_GenerationFailureCarriesMessage(t *testing.T) {
	job := domain.Job{Prompt: "boom", DurationSeconds: 5, BaseName: "a.wav"}
	gen := newFakeGenerator()
	gen.failWith["boom"] = errors.New("CUDA out of memory")

	r := New(testOptions(t), gen, newLocalStore(t), arbor.NewNoOpLogger())
	out := r.Process(context.Background(), job)

	failure, ok := out.(Failure)
	require.True(t, ok)
	assert.Equal(t, domain.StateGenerating, failure.Stage)
	assert.Equal(t, "CUDA out of memory", out.Result().ErrorMessage)
}

func TestProcess_Cost(t *testing.T) {
	job := domain.Job{Prompt: "p", DurationSeconds: 5, BaseName: "a.wav"}
	opts := Options{
		HourlyRateUSD: 2.0,
		TempDir:       t.TempDir(),
		now:           steppingClock(30 * time.Minute),
	}

	r := New(opts, newFakeGenerator(), newLocalStore(t), arbor.NewNoOpLogger())
	res := r.Process(context.Background(), job).Result()

	require.True(t, res.Success)
	assert.InDelta(t, 1800.0, res.GenerationTimeS, 1e-9)
	assert.InDelta(t, 1.0, res.EstimatedCostUSD, 1e-9)
}

func TestEstimateCost(t *testing.T) {
	assert.InDelta(t, 0.526, EstimateCost(time.Hour, 0.526), 1e-12)
	assert.InDelta(t, 0.0, EstimateCost(0, 0.526), 1e-12)
	assert.InDelta(t, 0.1, EstimateCost(360*time.Second, 1.0), 1e-12)
}

func TestRun_PartialFailureIsolation(t *testing.T) {
	jobs := []domain.Job{
		{Prompt: "first", DurationSeconds: 5, BaseName: "one.wav"},
		{Prompt: "broken", DurationSeconds: 5, BaseName: "two.wav"},
		{Prompt: "third", DurationSeconds: 5, BaseName: "three.wav"},
	}
	gen := newFakeGenerator()
	gen.failWith["broken"] = errors.New("model crashed")
	store := newLocalStore(t)

	r := New(testOptions(t), gen, store, arbor.NewNoOpLogger())
	results := r.Run(context.Background(), jobs)

	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, "model crashed", results[1].ErrorMessage)
	assert.True(t, results[2].Success)
	assert.True(t, AnyFailed(results))

	objs, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, objs, 2)
}

func TestRun_GeneratorPanicFailsOnlyThatJob(t *testing.T) {
	jobs := []domain.Job{
		{Prompt: "first", DurationSeconds: 5, BaseName: "one.wav"},
		{Prompt: "explodes", DurationSeconds: 5, BaseName: "two.wav"},
		{Prompt: "third", DurationSeconds: 5, BaseName: "three.wav"},
	}
	gen := newFakeGenerator()
	gen.panicWith = map[string]bool{"explodes": true}
	store := newLocalStore(t)

	r := New(testOptions(t), gen, store, arbor.NewNoOpLogger())
	var results []domain.JobResult
	require.NotPanics(t, func() { results = r.Run(context.Background(), jobs) })

	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, domain.StateFailed, results[1].State)
	assert.Contains(t, results[1].ErrorMessage, "panic: assignment to entry in nil map")
	assert.Greater(t, results[1].GenerationTimeS, 0.0)
	assert.True(t, results[2].Success)

	objs, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, objs, 2)
}

func TestProcess_StorePanicDuringUpload(t *testing.T) {
	job := domain.Job{Prompt: "p", DurationSeconds: 5, BaseName: "a.wav"}
	key := jobkey.ForJob(job)

	store := new(MockStore)
	store.On("Exists", mock.Anything, key).Return(false, nil)
	store.On("Upload", mock.Anything, key, mock.Anything, domain.AudioContentType).
		Run(func(args mock.Arguments) { panic("connection pool closed") }).
		Return(nil)

	r := New(testOptions(t), newFakeGenerator(), store, arbor.NewNoOpLogger())
	out := r.Process(context.Background(), job)

	failure, ok := out.(Failure)
	require.True(t, ok, "expected Failure, got %T", out)
	assert.Equal(t, domain.StateUploading, failure.Stage)
	assert.Equal(t, "upload failed", out.Result().ErrorMessage)
}

func TestProcess_StorePanicDuringExistsCheck(t *testing.T) {
	job := domain.Job{Prompt: "p", DurationSeconds: 5, BaseName: "a.wav"}
	key := jobkey.ForJob(job)

	store := new(MockStore)
	store.On("Exists", mock.Anything, key).
		Run(func(args mock.Arguments) { panic("nil client") }).
		Return(false, nil)
	gen := newFakeGenerator()

	r := New(testOptions(t), gen, store, arbor.NewNoOpLogger())
	out := r.Process(context.Background(), job)

	failure, ok := out.(Failure)
	require.True(t, ok, "expected Failure, got %T", out)
	assert.Equal(t, domain.StateExistsCheck, failure.Stage)
	assert.Zero(t, failure.Elapsed)
	assert.Empty(t, gen.calls)
}

func TestRun_EndToEndChunked(t *testing.T) {
	jobs := []domain.Job{{Prompt: "ambient drone", DurationSeconds: 45, BaseName: "track1.wav"}}
	gen := newFakeGenerator()
	store := newLocalStore(t)

	r := New(testOptions(t), gen, store, arbor.NewNoOpLogger())
	results := r.Run(context.Background(), jobs)

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.False(t, AnyFailed(results))
	assert.Equal(t, []int{30, 15}, gen.calls)

	objs, err := store.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Regexp(t, regexp.MustCompile(`^track1_[0-9a-f]{8}\.wav$`), objs[0].Key)
	assert.Equal(t, jobkey.Key("ambient drone", 45, "track1.wav"), objs[0].Key)
	// 45s at 100Hz, 16-bit mono, plus the 44 byte header
	assert.Equal(t, int64(45*100*2+44), objs[0].Size)
}

func TestRun_SecondRunSkipsEverything(t *testing.T) {
	jobs := []domain.Job{
		{Prompt: "a", DurationSeconds: 3, BaseName: "a.wav"},
		{Prompt: "b", DurationSeconds: 3, BaseName: "b.wav"},
	}
	store := newLocalStore(t)

	first := newFakeGenerator()
	New(testOptions(t), first, store, arbor.NewNoOpLogger()).Run(context.Background(), jobs)
	assert.Len(t, first.calls, 2)

	second := newFakeGenerator()
	results := New(testOptions(t), second, store, arbor.NewNoOpLogger()).Run(context.Background(), jobs)
	assert.Empty(t, second.calls)
	for _, res := range results {
		assert.True(t, res.Skipped)
	}
}

func TestRun_RecorderSeesEveryResult(t *testing.T) {
	jobs := []domain.Job{
		{Prompt: "a", DurationSeconds: 3, BaseName: "a.wav"},
		{Prompt: "b", DurationSeconds: 3, BaseName: "b.wav"},
	}
	var seen []int
	rec := RecorderFunc(func(ctx context.Context, index int, res domain.JobResult) error {
		seen = append(seen, index)
		return errors.New("ledger unavailable")
	})

	r := New(testOptions(t), newFakeGenerator(), newLocalStore(t), arbor.NewNoOpLogger())
	results := r.Run(context.Background(), jobs, rec)

	assert.Len(t, results, 2)
	assert.Equal(t, []int{0, 1}, seen)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := newFakeGenerator()
	r := New(testOptions(t), gen, newLocalStore(t), arbor.NewNoOpLogger())
	results := r.Run(ctx, []domain.Job{{Prompt: "a", DurationSeconds: 3, BaseName: "a.wav"}})

	assert.Empty(t, results)
	assert.Empty(t, gen.calls)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 60))
	long := strings.Repeat("x", 70)
	assert.Equal(t, strings.Repeat("x", 60)+"...", truncate(long, 60))
}
