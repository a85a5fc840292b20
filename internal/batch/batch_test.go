package batch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/folio/internal/address"
	"github.com/MeKo-Tech/folio/internal/fetch"
	"github.com/MeKo-Tech/folio/internal/iiif"
	"github.com/MeKo-Tech/folio/internal/imagecache"
	"github.com/MeKo-Tech/folio/internal/testutil"
	"github.com/MeKo-Tech/folio/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProcessor returns canned results and records what it was asked.
type stubProcessor struct {
	mu       sync.Mutex
	seen     map[string]worker.Options
	fail     map[string]bool
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *stubProcessor) ProcessManifest(_ context.Context, id string, opts worker.Options) *worker.Result {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(s.delay)

	s.mu.Lock()
	if s.seen == nil {
		s.seen = map[string]worker.Options{}
	}
	s.seen[id] = opts
	s.mu.Unlock()

	if s.fail[id] {
		return &worker.Result{ManifestID: id, Stage: worker.StageLoadFailed, Error: "boom", Err: errors.New("boom")}
	}
	return &worker.Result{ManifestID: id, Stage: worker.StageDone, Success: true, PagesProcessed: 3}
}

func tasksFor(dir string, ids ...string) []Task {
	tasks := make([]Task, len(ids))
	for i, id := range ids {
		tasks[i] = Task{ManifestID: id, OutputPath: address.ManifestOutputPath(id, dir)}
	}
	return tasks
}

func TestRun_ProcessesEveryTaskInOrder(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	tasks := tasksFor(dir, "m1", "m2", "m3")
	p := &stubProcessor{fail: map[string]bool{"m2": true}}

	summary := Run(context.Background(), p, tasks, &Config{
		Template: worker.Options{Model: "model-x", Resume: true, MaxPages: 4},
	})

	require.Len(t, summary.Outcomes, 3)
	for i, o := range summary.Outcomes {
		assert.Equal(t, tasks[i], o.Task)
	}
	assert.Equal(t, 2, summary.Processed())
	assert.Equal(t, []string{"m2"}, summary.Failed())
	assert.Equal(t, 6, summary.TotalPages())
	assert.NotEmpty(t, summary.RunID)

	opts := p.seen["m3"]
	assert.Equal(t, tasks[2].OutputPath, opts.OutputPath)
	assert.Equal(t, "model-x", opts.Model)
	assert.Equal(t, 4, opts.MaxPages)
}

func TestRun_SkipExisting(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	tasks := tasksFor(dir, "m1", "m2")
	testutil.WriteFile(t, tasks[0].OutputPath, []byte("{}\n"))
	p := &stubProcessor{}

	summary := Run(context.Background(), p, tasks, &Config{SkipExisting: true})

	assert.True(t, summary.Outcomes[0].Skipped)
	assert.Nil(t, summary.Outcomes[0].Result)
	assert.Equal(t, 1, summary.SkippedManifests())
	assert.Equal(t, 1, summary.Processed())
	assert.Empty(t, summary.Failed())
	assert.NotContains(t, p.seen, "m1")
}

func TestRun_RespectsWorkerLimit(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	p := &stubProcessor{delay: 20 * time.Millisecond}

	summary := Run(context.Background(), p, tasksFor(dir, "a", "b", "c", "d", "e", "f"), &Config{Workers: 2})

	assert.Equal(t, 6, summary.Processed())
	assert.Equal(t, 2, summary.Workers)
	assert.LessOrEqual(t, p.peak.Load(), int32(2))
}

func TestRun_CancelledContextLeavesTasksUnstarted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &stubProcessor{}

	summary := Run(ctx, p, tasksFor(t.TempDir(), "m1", "m2"), &Config{})

	assert.Empty(t, p.seen)
	assert.Equal(t, []string{"m1", "m2"}, summary.Failed())
	assert.Nil(t, summary.Outcomes[0].Result)
}

type recordingProgress struct {
	mu       sync.Mutex
	started  int
	updates  []int
	complete bool
}

func (r *recordingProgress) OnStart(total int) { r.started = total }

func (r *recordingProgress) OnManifest(done, _ int, _ Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, done)
}

func (r *recordingProgress) OnComplete(*Summary) { r.complete = true }

func TestRun_ReportsProgress(t *testing.T) {
	rec := &recordingProgress{}
	Run(context.Background(), &stubProcessor{}, tasksFor(t.TempDir(), "m1", "m2", "m3"),
		&Config{Workers: 3, Progress: rec})

	assert.Equal(t, 3, rec.started)
	assert.Equal(t, []int{1, 2, 3}, rec.updates)
	assert.True(t, rec.complete)
}

func TestRun_WithWorker(t *testing.T) {
	srv := testutil.NewIIIFServer(t)
	dir := testutil.CreateTempDir(t)
	page := testutil.EncodeJPEG(t, testutil.GenerateTextImage("Batch", testutil.SmallSize))
	srv.AddImageService("p1", page)
	srv.AddImageService("p2", page)

	var ids []string
	for _, name := range []string{"/a.json", "/b.json"} {
		id := srv.URLFor(name)
		srv.AddJSON(name, testutil.ManifestJSON(t, id, testutil.Pages(id, srv.ServiceBase(), 2)...))
		ids = append(ids, id)
	}
	missing := srv.URLFor("/missing.json")
	ids = append(ids, missing)

	client := fetch.New(nil)
	w := &worker.Worker{
		Loader: client,
		Images: imagecache.New(filepath.Join(dir, "cache"), client),
		Engine: &testutil.FakeEngine{},
	}
	tasks := tasksFor(filepath.Join(dir, "out"), ids...)

	summary := Run(context.Background(), w, tasks, &Config{
		Workers:  2,
		Template: worker.Options{Model: "m.mlmodel", Params: iiif.DefaultImageParams(), Resume: true},
	})

	assert.Equal(t, 2, summary.Processed())
	assert.Equal(t, []string{missing}, summary.Failed())
	assert.Equal(t, 4, summary.TotalPages())
	for _, task := range tasks[:2] {
		assert.Len(t, testutil.ReadLines(t, task.OutputPath), 2)
	}

	again := Run(context.Background(), w, tasks[:2], &Config{
		Template: worker.Options{Model: "m.mlmodel", Params: iiif.DefaultImageParams(), Resume: true},
	})
	assert.Equal(t, 0, again.TotalPages(), "a resumed run has nothing left to do")
	assert.Equal(t, 2, again.Processed())
}
