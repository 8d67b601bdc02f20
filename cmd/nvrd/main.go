// Package main implements the per-camera media pipeline service entry point.
//
// This service loads a multi-camera configuration, constructs one
// PipelineController per configured camera, and runs them for the lifetime
// of the process. It manages the RTSP-ingest streaming/recording branches
// for each camera as ffmpeg subprocesses, without any protocol-facing API of
// its own.
//
// The startup sequence:
// 1. Load and validate configuration
// 2. Initialize structured logging
// 3. Build and start one PipelineController per configured camera
// 4. Watch the config file for hot-reload and fan changes out via ApplySettings
// 5. Wait for SIGINT/SIGTERM and stop every controller in parallel
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/YawnsDuzin/nvr-gstreamer/internal/config"
	"github.com/YawnsDuzin/nvr-gstreamer/internal/logging"
	"github.com/YawnsDuzin/nvr-gstreamer/internal/pipeline"
)

const defaultShutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "config/default.yaml", "path to the pipeline configuration file")
	flag.Parse()

	loader := config.NewConfigLoader()
	cfg, err := loader.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if err := logging.ConfigureGlobalLogging(cfg.Logging.ToLoggingConfig()); err != nil {
		log.Fatalf("failed to configure logging: %v", err)
	}

	logger := logging.GetLogger("pipelined")
	logger.Info("starting camera pipeline service")

	controllers := make(map[string]*pipeline.PipelineController, len(cfg.Cameras))
	var mu sync.Mutex

	for _, cam := range cfg.Cameras {
		snapshot, ok := cfg.SnapshotFor(cam.CameraID)
		if !ok {
			logger.WithFields(logging.Fields{"camera_id": cam.CameraID}).Error("camera disappeared from configuration during startup")
			continue
		}

		controller := pipeline.NewPipelineController(cam.CameraID, snapshot, logging.GetLogger("pipeline."+cam.CameraID))
		if err := controller.Create(); err != nil {
			logger.WithFields(logging.Fields{"camera_id": cam.CameraID}).WithError(err).Error("failed to construct pipeline, skipping camera")
			continue
		}

		ctx := context.Background()
		if err := controller.Start(ctx); err != nil {
			logger.WithFields(logging.Fields{"camera_id": cam.CameraID}).WithError(err).Error("failed to start pipeline, skipping camera")
			continue
		}

		mu.Lock()
		controllers[cam.CameraID] = controller
		mu.Unlock()
		logger.WithFields(logging.Fields{"camera_id": cam.CameraID}).Info("camera pipeline started")
	}

	if len(controllers) == 0 {
		logger.Warn("no camera pipelines started successfully")
	}

	watcher, err := config.NewConfigWatcher(*configPath, func(updated *config.Config) error {
		mu.Lock()
		defer mu.Unlock()
		for id, controller := range controllers {
			snapshot, ok := updated.SnapshotFor(id)
			if !ok {
				logger.WithFields(logging.Fields{"camera_id": id}).Warn("camera removed from configuration; existing pipeline keeps running on its last settings")
				continue
			}
			controller.ApplySettings(snapshot)
		}
		return nil
	})
	if err != nil {
		logger.WithError(err).Error("failed to start configuration watcher; hot-reload disabled")
	} else if err := watcher.Start(); err != nil {
		logger.WithError(err).Error("failed to start configuration watcher; hot-reload disabled")
	} else {
		defer watcher.Stop()
	}

	logger.Info("camera pipeline service started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("received shutdown signal, stopping camera pipelines...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	mu.Lock()
	defer mu.Unlock()

	var wg sync.WaitGroup
	for id, controller := range controllers {
		wg.Add(1)
		go func(id string, controller *pipeline.PipelineController) {
			defer wg.Done()
			if err := controller.Stop(shutdownCtx); err != nil {
				logger.WithFields(logging.Fields{"camera_id": id}).WithError(err).Error("error stopping pipeline")
			}
		}(id, controller)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all camera pipelines stopped cleanly")
	case <-shutdownCtx.Done():
		logger.Error("shutdown timeout - forcing exit")
		os.Exit(1)
	}
}
