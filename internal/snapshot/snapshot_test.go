package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-lifecycle-engine/internal/model"
	"github.com/BuzzLyutic/task-lifecycle-engine/internal/repo"
)

func seed(t *testing.T) *repo.MemoryRepo {
	t.Helper()
	ctx := context.Background()
	r := repo.NewMemoryRepo()
	now := time.Now().UTC()
	for _, id := range []string{"tsk-c", "tsk-a", "tsk-b"} {
		_, err := r.Save(ctx, model.Task{
			ID: id, Name: id, Status: model.StatusPending,
			Context: model.ContextWork, Priority: model.PriorityLow, Complexity: model.ComplexityTrivial,
			Dependencies: []string{}, Version: 1, CreatedAt: now, UpdatedAt: now,
		}, 0)
		require.NoError(t, err)
	}
	a, err := r.FindByID(ctx, "tsk-a")
	require.NoError(t, err)
	a.Dependencies = []string{"tsk-b", "tsk-c"}
	a.Version = 2
	_, err = r.Save(ctx, a, 1)
	require.NoError(t, err)
	return r
}

func lines(s string) []string {
	var out []string
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		if sc.Text() != "" {
			out = append(out, sc.Text())
		}
	}
	return out
}

func TestExportJSONL(t *testing.T) {
	var buf bytes.Buffer
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, ExportJSONL(context.Background(), seed(t), &buf, at))

	got := lines(buf.String())
	require.Len(t, got, 6) // header + 3 tasks + 2 edges

	var h header
	require.NoError(t, json.Unmarshal([]byte(got[0]), &h))
	assert.Equal(t, "header", h.Type)
	assert.Equal(t, 3, h.TaskCount)
	assert.Equal(t, 2, h.EdgeCount)
	assert.True(t, at.Equal(h.Timestamp))

	var ids []string
	for _, line := range got[1:4] {
		var rec struct {
			Type string     `json:"type"`
			Data model.Task `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		assert.Equal(t, "task", rec.Type)
		ids = append(ids, rec.Data.ID)
	}
	assert.Equal(t, []string{"tsk-a", "tsk-b", "tsk-c"}, ids)

	var edge struct {
		Type string     `json:"type"`
		Data model.Edge `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(got[4]), &edge))
	assert.Equal(t, model.Edge{From: "tsk-a", To: "tsk-b"}, edge.Data)
}

func TestExportJSONL_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportJSONL(context.Background(), repo.NewMemoryRepo(), &buf, time.Now()))
	assert.Len(t, lines(buf.String()), 1)
}

func TestExportJSONL_SourceUnavailable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ExportJSONL(ctx, repo.NewMemoryRepo(), io.Discard, time.Now())
	assert.ErrorIs(t, err, repo.ErrorStoreUnavailable)
}

func TestFileDestination(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.jsonl")
	dest := FileDestination{Path: path}

	require.NoError(t, dest.Write(context.Background(), []byte("first\n")))
	require.NoError(t, dest.Write(context.Background(), []byte("second\n")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

type failingDestination struct{}

func (failingDestination) Write(context.Context, []byte) error { return errors.New("disk full") }

func TestExporter_ContinuesPastFailingDestination(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.jsonl")
	exp := NewExporter(seed(t), zap.NewNop(), failingDestination{}, FileDestination{Path: path})

	n, err := exp.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Positive(t, n)
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Len(t, data, n)
}

func TestS3Destination_PutsObjectPathStyle(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	var (
		mu     sync.Mutex
		method string
		path   string
		body   []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, b
		mu.Unlock()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dest, err := NewS3Destination(context.Background(), "snapshots", "daily/tasks.jsonl", "us-east-1", srv.URL)
	require.NoError(t, err)

	payload := `{"type":"header"}` + "\n"
	require.NoError(t, dest.Write(context.Background(), []byte(payload)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/snapshots/daily/tasks.jsonl", path)
	assert.Contains(t, string(body), `{"type":"header"}`)
}
