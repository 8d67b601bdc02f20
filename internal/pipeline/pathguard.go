package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/YawnsDuzin/nvr-gstreamer/internal/logging"
)

const hardFreeSpaceFloorGB = 1.0

// PathGuard runs the synchronous, blocking pre-recording checks of §4.3
// before the controller opens the recording valve. Grounded in
// internal/mediamtx/path_validator.go's validate-then-cache shape, adapted
// to the spec's five-step contract (mount check, directory creation,
// permission check, free-space floor, touch-and-unlink probe).
type PathGuard struct {
	logger              *logging.Logger
	warnFreeSpaceGB     float64
	lastCorruptedFile   string
}

// NewPathGuard creates a PathGuard. warnFreeSpaceGB configures the
// intermediate warning tier ahead of the hard 1 GiB floor (§13).
func NewPathGuard(logger *logging.Logger, warnFreeSpaceGB float64) *PathGuard {
	return &PathGuard{logger: logger, warnFreeSpaceGB: warnFreeSpaceGB}
}

// ValidationResult is the outcome of a successful Validate call.
type ValidationResult struct {
	Path          string
	FreeSpaceGB   float64
	FreeSpaceTier FreeSpaceTier
}

// Validate runs the five checks of §4.3 against recordingRoot/cameraID/date.
// On any failure the recording valve must stay closed; the returned
// *PathGuardError distinguishes the failure kind so "permission denied after
// remount" is never confused with "mount missing".
func (g *PathGuard) Validate(recordingRoot, cameraID string, now time.Time) (*ValidationResult, error) {
	if err := g.checkMountPoint(recordingRoot); err != nil {
		return nil, err
	}

	dateDir := now.Format("20060102")
	cameraDir := filepath.Join(recordingRoot, cameraID, dateDir)

	if err := g.ensureDir(cameraDir); err != nil {
		return nil, err
	}

	if err := g.checkAccess(cameraDir); err != nil {
		return nil, err
	}

	freeGB, tier, err := g.checkFreeSpace(cameraDir)
	if err != nil {
		return nil, err
	}
	if tier == FreeSpaceCritical {
		return nil, &PathGuardError{Path: cameraDir, Kind: "disk_full", Op: "free_space", Err: fmt.Errorf("free space %.2f GiB below floor %.2f GiB", freeGB, hardFreeSpaceFloorGB)}
	}

	if err := g.touchProbe(cameraDir); err != nil {
		return nil, err
	}

	if tier == FreeSpaceWarning {
		g.logger.WithFields(logging.Fields{"path": cameraDir, "free_gb": freeGB}).Warn("recording path approaching free-space floor")
	}

	return &ValidationResult{Path: cameraDir, FreeSpaceGB: freeGB, FreeSpaceTier: tier}, nil
}

// LastCorruptedFile returns the path last flagged by a storage-error
// transition. Carried forward per §10's open-question decision for future
// external consumers; it is legal to ignore.
func (g *PathGuard) LastCorruptedFile() string {
	return g.lastCorruptedFile
}

// SetLastCorruptedFile is called by the controller on a storage-error
// transition so a future UI "recover last file" action has a target.
func (g *PathGuard) SetLastCorruptedFile(path string) {
	g.lastCorruptedFile = path
}

// ApplySettings updates the warning free-space tier an operator changed via
// hot-reload (§11, §13 free-space tiering).
func (g *PathGuard) ApplySettings(warnFreeSpaceGB float64) {
	g.warnFreeSpaceGB = warnFreeSpaceGB
}

// checkMountPoint verifies a platform mount-point path (e.g.
// /media/<user>/<device>) actually is a mount, not a stale directory left
// behind after device removal, and is readable+executable (§4.3 step 1).
func (g *PathGuard) checkMountPoint(root string) error {
	if !strings.HasPrefix(root, "/media/") && !strings.HasPrefix(root, "/mnt/") {
		return nil
	}

	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return &PathGuardError{Path: root, Kind: "mount_missing", Op: "stat", Err: err}
		}
		return &PathGuardError{Path: root, Kind: "io", Op: "stat", Err: err}
	}
	if !info.IsDir() {
		return &PathGuardError{Path: root, Kind: "mount_missing", Op: "stat", Err: fmt.Errorf("not a directory")}
	}

	if !isMountPoint(root) {
		return &PathGuardError{Path: root, Kind: "mount_missing", Op: "mount_check", Err: fmt.Errorf("path exists but is not an active mount point")}
	}

	f, err := os.Open(root)
	if err != nil {
		return &PathGuardError{Path: root, Kind: "permission", Op: "open", Err: err}
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err != nil && err.Error() != "EOF" {
		// An empty mount is fine; a permission error on listing is not.
		if os.IsPermission(err) {
			return &PathGuardError{Path: root, Kind: "permission", Op: "readdir", Err: err}
		}
	}

	return nil
}

// isMountPoint compares the device ID of root against its parent; a real
// mount point's device ID differs from its parent directory's.
func isMountPoint(root string) bool {
	var st, parentSt unix.Stat_t
	if err := unix.Stat(root, &st); err != nil {
		return false
	}
	parent := filepath.Dir(root)
	if err := unix.Stat(parent, &parentSt); err != nil {
		return false
	}
	return st.Dev != parentSt.Dev
}

func (g *PathGuard) ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		if os.IsPermission(err) {
			return &PathGuardError{Path: dir, Kind: "permission", Op: "mkdir", Err: err}
		}
		if os.IsNotExist(err) {
			return &PathGuardError{Path: dir, Kind: "not_found", Op: "mkdir", Err: err}
		}
		return &PathGuardError{Path: dir, Kind: "io", Op: "mkdir", Err: err}
	}
	return nil
}

func (g *PathGuard) checkAccess(dir string) error {
	if err := unix.Access(dir, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return &PathGuardError{Path: dir, Kind: "permission", Op: "access", Err: err}
	}
	return nil
}

func (g *PathGuard) checkFreeSpace(dir string) (float64, FreeSpaceTier, error) {
	freeGB, err := freeSpaceGB(dir)
	if err != nil {
		return 0, FreeSpaceCritical, &PathGuardError{Path: dir, Kind: "io", Op: "statfs", Err: err}
	}

	switch {
	case freeGB < hardFreeSpaceFloorGB:
		return freeGB, FreeSpaceCritical, nil
	case freeGB < g.warnFreeSpaceGB:
		return freeGB, FreeSpaceWarning, nil
	default:
		return freeGB, FreeSpaceOK, nil
	}
}

// touchProbe writes and deletes a sentinel file to catch read-only remounts
// that a bare Access() check can miss (§4.3 step 5).
func (g *PathGuard) touchProbe(dir string) error {
	probe := filepath.Join(dir, fmt.Sprintf(".pathguard_probe_%d", time.Now().UnixNano()))
	f, err := os.Create(probe)
	if err != nil {
		return &PathGuardError{Path: dir, Kind: "permission", Op: "touch_probe", Err: err}
	}
	f.Close()
	if err := os.Remove(probe); err != nil {
		return &PathGuardError{Path: dir, Kind: "io", Op: "touch_probe_cleanup", Err: err}
	}
	return nil
}
