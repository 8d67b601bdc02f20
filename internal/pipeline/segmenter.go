package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/YawnsDuzin/nvr-gstreamer/internal/config"
	"github.com/YawnsDuzin/nvr-gstreamer/internal/logging"
)

// storageFaultHop is the thread-safe signal the Segmenter uses to notify the
// controller's control thread of a storage fault discovered while computing
// a file name on the FFmpeg supervisor's callback path (§4.4, §9 "backend
// callbacks that mutate the same object that invoked them").
type storageFaultHop struct {
	CameraID string
	Path     string
	Err      error
}

// Segmenter computes the next fragment's output path once per segment
// boundary and tracks the corrupted-file hook (§4.4, §10).
type Segmenter struct {
	recordingRoot string
	cameraID      string
	ext           string
	logger        *logging.Logger

	mu                sync.Mutex
	index             int
	lastCorruptedFile string

	faultHop chan storageFaultHop
}

// NewSegmenter creates a Segmenter for one camera. faultHop is a
// buffered channel the controller drains; it must never block the
// media-backend thread calling NextPath.
func NewSegmenter(recordingRoot, cameraID string, format config.FileFormat, logger *logging.Logger, faultHop chan storageFaultHop) *Segmenter {
	return &Segmenter{
		recordingRoot: recordingRoot,
		cameraID:      cameraID,
		ext:           string(format),
		logger:        logger,
		faultHop:      faultHop,
	}
}

// NextPath returns the path for the next fragment, formatted
// <recording_root>/<camera_id>/<YYYYMMDD>/<camera_id>_<YYYYMMDD>_<HHMMSS>.<ext>
// (§4.4). The timestamp is captured at call time (fragment wall-clock
// start). If the parent date directory cannot be created, a sentinel path is
// returned and a StorageDisconnected fault is hopped to the controller
// instead of the caller panicking inside a media-backend callback thread.
func (s *Segmenter) NextPath(now time.Time) string {
	s.mu.Lock()
	s.index++
	idx := s.index
	recordingRoot := s.recordingRoot
	s.mu.Unlock()

	dateDir := now.Format("20060102")
	dir := filepath.Join(recordingRoot, s.cameraID, dateDir)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		sentinel := filepath.Join(os.TempDir(), fmt.Sprintf("%s_corrupt_%d%s", s.cameraID, idx, s.extSuffix()))
		s.mu.Lock()
		s.lastCorruptedFile = sentinel
		s.mu.Unlock()

		s.logger.WithFields(logging.Fields{"camera_id": s.cameraID, "dir": dir, "error": err}).
			Error("segmenter could not create fragment directory, hopping storage-disconnected fault")

		select {
		case s.faultHop <- storageFaultHop{CameraID: s.cameraID, Path: dir, Err: err}:
		default:
			s.logger.WithFields(logging.Fields{"camera_id": s.cameraID}).Warn("segmenter fault hop channel full, dropping duplicate signal")
		}
		return sentinel
	}

	filename := fmt.Sprintf("%s_%s_%s%s", s.cameraID, dateDir, now.Format("150405"), s.extSuffix())
	return filepath.Join(dir, filename)
}

func (s *Segmenter) extSuffix() string {
	return "." + s.ext
}

// ApplySettings updates the recording root and container format an operator
// changed via hot-reload (§11); the fragment index keeps counting rather
// than resetting, since a rotation boundary has not occurred.
func (s *Segmenter) ApplySettings(recordingRoot string, format config.FileFormat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordingRoot = recordingRoot
	s.ext = string(format)
}

// LastCorruptedFile returns the sentinel path from the most recent
// directory-creation failure, or "" if none occurred. Carried forward for
// future external consumers per §10; legal to ignore.
func (s *Segmenter) LastCorruptedFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCorruptedFile
}

// NewSegment builds a Segment record for a freshly opened fragment path,
// stamping a correlation ID for cross-referencing controller logs with
// archive files (§12).
func NewSegment(cameraID, path string, plannedStart time.Time, index int) Segment {
	return Segment{
		Index:         index,
		Path:          path,
		PlannedStart:  plannedStart,
		CameraID:      cameraID,
		CorrelationID: uuid.NewString(),
	}
}
