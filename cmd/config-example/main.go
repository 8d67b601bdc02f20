// Command config-example loads a pipeline configuration file and prints a
// per-camera settings summary, useful for sanity-checking a config before
// handing it to nvrd.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/YawnsDuzin/nvr-gstreamer/internal/config"
)

func main() {
	loader := config.NewConfigLoader()

	configPath := "config/default.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := loader.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("=== Camera Pipeline Configuration ===")

	fmt.Printf("\nRecording:\n")
	fmt.Printf("  Format: %s\n", cfg.Recording.FileFormat)
	fmt.Printf("  Codec: %s\n", cfg.Recording.Codec)
	fmt.Printf("  Rotation: %d minutes\n", cfg.Recording.RotationMinutes)
	fmt.Printf("  Max Segment Size: %d bytes\n", cfg.Recording.MaxSegmentBytes)

	fmt.Printf("\nStreaming:\n")
	fmt.Printf("  TCP Timeout: %d ms\n", cfg.Streaming.TCPTimeoutMS)
	fmt.Printf("  Max Reconnect Attempts: %d\n", cfg.Streaming.MaxReconnectAttempts)
	fmt.Printf("  Reconnect Delay: %d seconds\n", cfg.Streaming.ReconnectDelaySeconds)

	fmt.Printf("\nStorage:\n")
	fmt.Printf("  Recording Path: %s\n", cfg.Storage.RecordingPath)
	fmt.Printf("  Min Free Space: %.1f GB\n", cfg.Storage.MinFreeSpaceGB)
	fmt.Printf("  Warn Free Space: %.1f GB\n", cfg.Storage.WarnFreeSpaceGB)

	fmt.Printf("\nLogging:\n")
	fmt.Printf("  Level: %s\n", cfg.Logging.Level)
	fmt.Printf("  File Enabled: %t\n", cfg.Logging.FileEnabled)
	fmt.Printf("  Console Enabled: %t\n", cfg.Logging.ConsoleEnabled)
	if cfg.Logging.FileEnabled {
		fmt.Printf("  File Path: %s\n", cfg.Logging.FilePath)
	}

	fmt.Printf("\nCameras (%d configured):\n", len(cfg.Cameras))
	for _, cam := range cfg.Cameras {
		fmt.Printf("  - %s (%s)\n", cam.CameraID, cam.Name)
		fmt.Printf("    RTSP URL: %s\n", cam.RTSPURL)
		fmt.Printf("    Mode: %s\n", cam.Mode)
		fmt.Printf("    Rotation: %d degrees, Flip: %s\n", cam.VideoTransform.Rotation, cam.VideoTransform.Flip)
	}

	fmt.Println("\n=== Configuration loaded successfully ===")
}
