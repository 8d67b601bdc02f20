// Command hot-reload-example demonstrates ConfigWatcher's hot-reload
// behavior against a standalone config file, independent of nvrd. It writes
// a sequence of configuration revisions to a temp file and logs each
// accepted (or rejected) reload as ConfigWatcher picks it up.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/YawnsDuzin/nvr-gstreamer/internal/config"
)

const baseConfig = `
recording:
  file_format: mp4
  codec: h264
  rotation_minutes: 15
  fragment_duration_ms: 2000
  max_segment_bytes: 1073741824

streaming:
  latency_ms: 200
  tcp_timeout_ms: 5000
  keepalive_timeout_s: 30
  max_reconnect_attempts: 10
  reconnect_delay_seconds: 5

storage:
  recording_path: /var/lib/nvr/recordings
  min_free_space_gb: 1
  warn_free_space_gb: 5

logging:
  level: %s
  format: text
  console_enabled: true

cameras:
  - camera_id: cam-1
    name: Front Door
    rtsp_url: rtsp://127.0.0.1:554/cam1
    enabled: true
    mode: both
`

func main() {
	logrus.SetLevel(logrus.InfoLevel)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	configPath := filepath.Join(os.TempDir(), "hot-reload-demo.yaml")
	if err := os.WriteFile(configPath, []byte(renderConfig("info")), 0o644); err != nil {
		log.Fatalf("failed to create initial config file: %v", err)
	}
	logrus.Infof("created initial config file at: %s", configPath)

	loader := config.NewConfigLoader()
	cfg, err := loader.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load initial configuration: %v", err)
	}
	logrus.Infof("initial configuration loaded - log level: %s, cameras: %d", cfg.Logging.Level, len(cfg.Cameras))

	reloadCallback := func(updated *config.Config) error {
		logrus.Infof("configuration reloaded - log level: %s, cameras: %d", updated.Logging.Level, len(updated.Cameras))
		return nil
	}

	watcher, err := config.NewConfigWatcher(configPath, reloadCallback)
	if err != nil {
		log.Fatalf("failed to create config watcher: %v", err)
	}
	if err := watcher.Start(); err != nil {
		log.Fatalf("failed to start config watcher: %v", err)
	}
	logrus.Info("configuration hot reload started, press Ctrl+C to exit")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		time.Sleep(3 * time.Second)
		logrus.Info("updating configuration (log level: info -> debug)")
		writeRevision(configPath, "debug")

		time.Sleep(3 * time.Second)
		logrus.Info("updating configuration with an invalid log level (should trigger a validation error)")
		writeRevision(configPath, "not_a_real_level")

		time.Sleep(3 * time.Second)
		logrus.Info("restoring valid configuration")
		writeRevision(configPath, "info")
	}()

	<-sigChan
	logrus.Info("shutdown signal received, stopping config watcher...")

	if err := watcher.Stop(); err != nil {
		logrus.Errorf("error stopping config watcher: %v", err)
	}
	if err := os.Remove(configPath); err != nil {
		logrus.Errorf("error removing temporary config file: %v", err)
	}
	logrus.Info("hot reload example completed successfully")
}

func renderConfig(logLevel string) string {
	return fmt.Sprintf(baseConfig, logLevel)
}

func writeRevision(configPath, logLevel string) {
	if err := os.WriteFile(configPath, []byte(renderConfig(logLevel)), 0o644); err != nil {
		logrus.Errorf("failed to update config file: %v", err)
	}
}
