package content_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/veilwood/mud/internal/content"
)

type reloadRecorder struct {
	mu      sync.Mutex
	batches [][]string
	notify  chan struct{}
}

func newReloadRecorder() *reloadRecorder {
	return &reloadRecorder{notify: make(chan struct{}, 8)}
}

func (r *reloadRecorder) reload(changed []string) {
	r.mu.Lock()
	r.batches = append(r.batches, changed)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *reloadRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *reloadRecorder) last() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.batches) == 0 {
		return nil
	}
	return r.batches[len(r.batches)-1]
}

func startWatcher(t *testing.T, rec *reloadRecorder, dir string) *content.Watcher {
	t.Helper()
	w, err := content.NewWatcher(zaptest.NewLogger(t), rec.reload, 50*time.Millisecond, dir)
	require.NoError(t, err)
	go func() { _ = w.Start() }()
	t.Cleanup(w.Stop)
	return w
}

func TestWatcherFiresOnYAMLChange(t *testing.T) {
	dir := t.TempDir()
	rec := newReloadRecorder()
	startWatcher(t, rec, dir)

	path := filepath.Join(dir, "wolf.yaml")
	require.NoError(t, os.WriteFile(path, []byte("id: forest-wolf\n"), 0644))

	select {
	case <-rec.notify:
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after yaml write")
	}
	assert.Contains(t, rec.last(), path)
}

func TestWatcherCoalescesRapidWrites(t *testing.T) {
	dir := t.TempDir()
	rec := newReloadRecorder()
	startWatcher(t, rec, dir)

	path := filepath.Join(dir, "venom.yaml")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("id: wolf-venom\n"), 0644))
	}

	select {
	case <-rec.notify:
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after rapid writes")
	}

	// The burst lands inside one debounce window.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestWatcherIgnoresUntrackedFiles(t *testing.T) {
	dir := t.TempDir()
	rec := newReloadRecorder()
	startWatcher(t, rec, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644))

	select {
	case <-rec.notify:
		t.Fatal("reload fired for untracked file")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherMissingDir(t *testing.T) {
	rec := newReloadRecorder()
	_, err := content.NewWatcher(zaptest.NewLogger(t), rec.reload, 0, "/nonexistent/content")
	assert.Error(t, err)
}

func TestWatcherStopIdempotent(t *testing.T) {
	dir := t.TempDir()
	rec := newReloadRecorder()
	w := startWatcher(t, rec, dir)
	w.Stop()
	w.Stop()
}
