package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHashHex(t *testing.T) {
	// SHA-256 of "hello world" and of empty input are well-known.
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", ContentHashHex([]byte("hello world")))
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ContentHashHex([]byte{}))
	assert.NotEqual(t, ContentHashHex([]byte("aaa")), ContentHashHex([]byte("bbb")))
}

func TestJob_StateTransitions(t *testing.T) {
	job := &Job{
		ID:        "test-1",
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusConverting, "converting"},
		{StatusDescribing, "describing images"},
		{StatusChunking, "chunking"},
		{StatusEmbedding, "embedding"},
		{StatusStoring, "storing"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		assert.Equal(t, tr.status, job.Status)
		assert.Equal(t, tr.phase, job.Phase)
		assert.True(t, job.UpdatedAt.After(before), "UpdatedAt should advance after SetStatus(%q)", tr.status)
	}
}

func TestJobStatus_Done(t *testing.T) {
	for _, s := range []JobStatus{StatusCompleted, StatusPartial, StatusFailed} {
		assert.True(t, s.Done(), s)
	}
	for _, s := range []JobStatus{StatusQueued, StatusConverting, StatusDescribing, StatusChunking, StatusEmbedding, StatusStoring} {
		assert.False(t, s.Done(), s)
	}
}

func TestJob_Progress(t *testing.T) {
	job := &Job{ID: "progress", UpdatedAt: time.Now()}
	job.SetImages(3, 2)
	job.SetTotalChunks(42)
	job.SetEmbedded(40, 2)
	job.AddStored(10)
	job.AddStored(30)
	job.AddError("chunk 3: boom")
	job.AddError("chunk 7: boom")
	job.SetContentHash("abc")

	snap := job.Snapshot()
	assert.Equal(t, 3, snap.Progress.ImagesFound)
	assert.Equal(t, 2, snap.Progress.ImagesDescribed)
	assert.Equal(t, 42, snap.Progress.TotalChunks)
	assert.Equal(t, 40, snap.Progress.ChunksEmbedded)
	assert.Equal(t, 2, snap.Progress.EmbedFailures)
	assert.Equal(t, 40, snap.Progress.ChunksStored)
	assert.Equal(t, []string{"chunk 3: boom", "chunk 7: boom"}, snap.Progress.Errors)
	assert.Equal(t, "abc", snap.ContentHash)
}

func TestJob_SnapshotIsACopy(t *testing.T) {
	job := &Job{ID: "snap"}
	snap := job.Snapshot()
	require.NotNil(t, snap.Progress.Errors)
	assert.Empty(t, snap.Progress.Errors)

	job.AddError("first")
	snap = job.Snapshot()
	job.AddError("second")
	assert.Equal(t, []string{"first"}, snap.Progress.Errors)
}

func TestJob_FileDataAndRecords(t *testing.T) {
	job := &Job{ID: "data"}
	job.SetFileData([]byte("file content here"))
	assert.Equal(t, "file content here", string(job.FileData()))

	job.releaseFileData()
	assert.Nil(t, job.FileData())

	assert.Empty(t, job.Records())
	job.SetRecords("[# 1]\n")
	assert.Equal(t, "[# 1]\n", job.Records())
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	store.Put(&Job{ID: "store-1", UpdatedAt: time.Now()})

	got := store.Get("store-1")
	require.NotNil(t, got)
	assert.Equal(t, "store-1", got.ID)
	assert.Nil(t, store.Get("nonexistent"))
	assert.Equal(t, 1, store.Len())
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)
	store.Put(&Job{ID: "old", UpdatedAt: time.Now()})

	time.Sleep(100 * time.Millisecond)
	store.Put(&Job{ID: "new", UpdatedAt: time.Now()})

	store.Cleanup()

	assert.Nil(t, store.Get("old"))
	assert.NotNil(t, store.Get("new"))
}

func TestJobStore_CleanupEmpty(t *testing.T) {
	store := NewJobStore(time.Hour)
	store.Cleanup()
	assert.Zero(t, store.Len())
}
