package state

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTrackerRoundTrip(t *testing.T) {
	tracker := &FileTracker{Dir: t.TempDir()}

	assert.False(t, tracker.IsComplete(StageMount))
	assert.False(t, tracker.IsComplete(StageInstall))

	require.NoError(t, tracker.MarkComplete(StageMount))

	assert.True(t, tracker.IsComplete(StageMount))
	// Stages record independently.
	assert.False(t, tracker.IsComplete(StageInstall))
	assert.False(t, tracker.IsComplete(StageConfigure))
}

func TestFileTrackerMarkerNames(t *testing.T) {
	dir := t.TempDir()
	tracker := &FileTracker{Dir: dir}

	require.NoError(t, tracker.MarkComplete(StageConfigure))

	// The marker name is part of the operator contract: deleting it is
	// how re-provisioning is requested.
	assert.FileExists(t, filepath.Join(dir, ".aectl_configure_done"))
}

func TestFileTrackerMarkFailureSurfaces(t *testing.T) {
	tracker := &FileTracker{Dir: filepath.Join(t.TempDir(), "missing", "nested")}

	err := tracker.MarkComplete(StageInstall)
	require.Error(t, err)
	// The write failed, so the stage must not read as complete.
	assert.False(t, tracker.IsComplete(StageInstall))
}

func TestMemTracker(t *testing.T) {
	tracker := NewMemTracker()

	assert.False(t, tracker.IsComplete(StageMount))
	require.NoError(t, tracker.MarkComplete(StageMount))
	assert.True(t, tracker.IsComplete(StageMount))
}
