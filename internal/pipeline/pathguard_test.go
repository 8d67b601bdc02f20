package pipeline

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YawnsDuzin/nvr-gstreamer/internal/logging"
)

func newTestLogger() *logging.Logger {
	l := logging.NewLogger("test")
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestPathGuard_Validate_CreatesDateDirectoryAndPasses(t *testing.T) {
	root := t.TempDir()
	g := NewPathGuard(newTestLogger(), 5)

	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	result, err := g.Validate(root, "cam-1", now)
	require.NoError(t, err)

	expectedDir := filepath.Join(root, "cam-1", "20260730")
	assert.Equal(t, expectedDir, result.Path)
	assert.Equal(t, FreeSpaceOK, result.FreeSpaceTier)
}

func TestPathGuard_Validate_RejectsNonMountPathUnderMedia(t *testing.T) {
	g := NewPathGuard(newTestLogger(), 5)

	_, err := g.Validate("/media/does-not-exist-nvr-test", "cam-1", time.Now())
	require.Error(t, err)

	var pgErr *PathGuardError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "mount_missing", pgErr.Kind)
}

func TestPathGuard_LastCorruptedFile_InitiallyEmpty(t *testing.T) {
	g := NewPathGuard(newTestLogger(), 5)
	assert.Empty(t, g.LastCorruptedFile())

	g.SetLastCorruptedFile("/tmp/some-sentinel")
	assert.Equal(t, "/tmp/some-sentinel", g.LastCorruptedFile())
}
