package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogging_NewLogger(t *testing.T) {
	t.Parallel()
	logger := NewLogger("test-component")

	assert.NotNil(t, logger)
	assert.NotNil(t, logger.Logger)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestLogging_GetLogger_ComponentFactory(t *testing.T) {
	t.Parallel()
	logger1 := GetLogger("cam-1")
	logger2 := GetLogger("cam-1")

	assert.NotNil(t, logger1)
	assert.NotNil(t, logger2)
	// The factory builds a fresh logrus instance per call; both share the
	// factory's current configuration rather than being the same pointer.
	assert.Equal(t, logger1.component, logger2.component)
}

func TestLogging_DefaultLogger_IsSingleton(t *testing.T) {
	t.Parallel()
	logger1 := defaultLogger()
	logger2 := defaultLogger()

	assert.NotNil(t, logger1)
	assert.Same(t, logger1, logger2)
}

func TestLogging_SetupLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  *LoggingConfig
		wantErr bool
	}{
		{
			name: "valid console config",
			config: &LoggingConfig{
				Level:          "info",
				Format:         "text",
				ConsoleEnabled: true,
				FileEnabled:    false,
			},
			wantErr: false,
		},
		{
			name: "valid file config",
			config: &LoggingConfig{
				Level:          "debug",
				Format:         "json",
				ConsoleEnabled: false,
				FileEnabled:    true,
				FilePath:       filepath.Join(t.TempDir(), "test.log"),
				MaxFileSize:    100,
				BackupCount:    5,
			},
			wantErr: false,
		},
		{
			name: "invalid log level falls back to info",
			config: &LoggingConfig{
				Level:          "invalid",
				ConsoleEnabled: true,
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SetupLogging(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLogging_CorrelationID(t *testing.T) {
	t.Parallel()

	correlationID := GenerateCorrelationID()
	assert.NotEmpty(t, correlationID)
	assert.Len(t, correlationID, 36)

	ctx := context.Background()
	ctxWithID := WithCorrelationID(ctx, correlationID)

	retrievedID := GetCorrelationIDFromContext(ctxWithID)
	assert.Equal(t, correlationID, retrievedID)

	emptyID := GetCorrelationIDFromContext(ctx)
	assert.Empty(t, emptyID)
}

func TestLogging_WithCorrelationID(t *testing.T) {
	t.Parallel()
	logger := NewLogger("pipeline.cam-1")

	loggerWithID := logger.WithCorrelationID("test-correlation-id")
	assert.NotNil(t, loggerWithID)
}

func TestLogging_WithField(t *testing.T) {
	t.Parallel()
	logger := NewLogger("pipeline.cam-1")

	loggerWithField := logger.WithField("camera_id", "cam-1")
	assert.NotNil(t, loggerWithField)
}

func TestLogging_WithError(t *testing.T) {
	t.Parallel()
	logger := NewLogger("pipeline.cam-1")

	loggerWithError := logger.WithError(assert.AnError)
	assert.NotNil(t, loggerWithError)
}

func TestLogging_LogWithContext(t *testing.T) {
	t.Parallel()
	logger := NewLogger("pipeline.cam-1")
	ctx := context.Background()
	ctxWithID := WithCorrelationID(ctx, "test-correlation-id")

	logger.LogWithContext(ctxWithID, logrus.InfoLevel, "test message")
	logger.LogWithContext(ctx, logrus.InfoLevel, "test message without correlation")
}

func TestLogging_ConvenienceMethods(t *testing.T) {
	t.Parallel()
	logger := NewLogger("pipeline.cam-1")
	ctx := context.Background()

	logger.DebugWithContext(ctx, "debug message")
	logger.InfoWithContext(ctx, "info message")
	logger.WarnWithContext(ctx, "warn message")
	logger.ErrorWithContext(ctx, "error message")

	assert.NotNil(t, logger)
}

func TestLogging_LevelManagement(t *testing.T) {
	t.Parallel()
	logger := NewLogger("pipeline.cam-1")

	logger.SetLevel(logrus.DebugLevel)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger.SetLevel(logrus.ErrorLevel)
	assert.Equal(t, logrus.ErrorLevel, logger.GetLevel())

	assert.True(t, logger.IsLevelEnabled(logrus.ErrorLevel))
	assert.True(t, logger.IsLevelEnabled(logrus.FatalLevel))
	assert.False(t, logger.IsLevelEnabled(logrus.InfoLevel))
}

func TestLogging_ComponentLevel(t *testing.T) {
	t.Parallel()
	logger := NewLogger("pipeline.cam-1")

	logger.SetComponentLevel("pipeline.cam-1", logrus.DebugLevel)

	effectiveLevel := logger.GetEffectiveLevel("pipeline.cam-1")
	assert.Equal(t, logrus.DebugLevel, effectiveLevel)

	assert.True(t, logger.IsLevelEnabled(logrus.DebugLevel))
	assert.True(t, logger.IsLevelEnabled(logrus.InfoLevel))
}

func TestLogging_SetupLoggingSimple(t *testing.T) {
	t.Parallel()

	err := SetupLoggingSimple(filepath.Join(t.TempDir(), "simple.log"), "info")
	assert.NoError(t, err)
}

func TestLogging_FileRotation(t *testing.T) {
	logFilePath := filepath.Join(t.TempDir(), "test.log")

	config := &LoggingConfig{
		Level:          "info",
		Format:         "text",
		ConsoleEnabled: false,
		FileEnabled:    true,
		FilePath:       logFilePath,
		MaxFileSize:    1,
		BackupCount:    3,
	}

	require.NoError(t, SetupLogging(config))

	logger := defaultLogger()
	for i := 0; i < 10; i++ {
		logger.Info("test log message that should trigger rotation")
	}

	time.Sleep(100 * time.Millisecond)

	_, err := os.Stat(logFilePath)
	assert.NoError(t, err, "log file should exist")
}

func TestLogging_FormatCompatibility(t *testing.T) {
	tests := []struct {
		name   string
		format string
	}{
		{"text format", "text"},
		{"json format", "json"},
		{"mixed format", "mixed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &LoggingConfig{
				Level:          "info",
				Format:         tt.format,
				ConsoleEnabled: true,
				FileEnabled:    false,
			}

			err := SetupLogging(config)
			assert.NoError(t, err)
		})
	}
}

func TestLogging_EnvironmentVariableOverride(t *testing.T) {
	os.Setenv("CAMERA_SERVICE_ENV", "production")
	defer os.Unsetenv("CAMERA_SERVICE_ENV")

	config := &LoggingConfig{
		Level:          "info",
		Format:         "text",
		ConsoleEnabled: true,
		FileEnabled:    false,
	}

	err := SetupLogging(config)
	assert.NoError(t, err)
}

func TestLogging_Concurrency(t *testing.T) {
	logger := NewLogger("pipeline.cam-1")

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(id int) {
			logger.Info("concurrent log message")
			logger.WithField("goroutine_id", fmt.Sprintf("%d", id)).Info("structured log message")
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	assert.NotNil(t, logger)
}

func TestLogging_ErrorHandling(t *testing.T) {
	config := &LoggingConfig{
		Level:          "info",
		Format:         "text",
		ConsoleEnabled: false,
		FileEnabled:    true,
		FilePath:       "/invalid/path/that/should/not/exist/test.log",
		MaxFileSize:    100,
		BackupCount:    5,
	}

	_ = SetupLogging(config)
	assert.NotNil(t, config)
}

func TestLogging_ComprehensiveErrorHandling(t *testing.T) {
	logger := NewLogger("pipeline.cam-1")

	testCases := []struct {
		name      string
		errorType string
	}{
		{"nil error", "nil"},
		{"standard error", "standard"},
		{"wrapped error", "wrapped"},
		{"file system error", "filesystem"},
		{"permission error", "permission"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var testErr error
			switch tc.errorType {
			case "standard":
				testErr = fmt.Errorf("standard test error")
			case "wrapped":
				testErr = fmt.Errorf("wrapped error: %w", fmt.Errorf("inner error"))
			case "filesystem":
				testErr = &os.PathError{Op: "open", Path: "/nonexistent", Err: fmt.Errorf("file not found")}
			case "permission":
				testErr = fmt.Errorf("permission denied: /protected/file")
			}

			loggerWithError := logger.WithError(testErr)
			assert.NotNil(t, loggerWithError)

			ctx := context.Background()
			if testErr != nil {
				logger.ErrorWithContext(ctx, "error occurred during test")
			}
		})
	}
}

func TestLogging_CrossComponentCorrelationID(t *testing.T) {
	streamingLogger := NewLogger("pipeline.cam-1.streaming")
	recordingLogger := NewLogger("pipeline.cam-1.recording")
	watchdogLogger := NewLogger("pipeline.cam-1.watchdog")

	correlationID := GenerateCorrelationID()
	assert.NotEmpty(t, correlationID)

	ctx := WithCorrelationID(context.Background(), correlationID)

	streamingLogger.LogWithContext(ctx, logrus.InfoLevel, "streaming leg started")
	recordingLogger.LogWithContext(ctx, logrus.InfoLevel, "recording leg started")
	watchdogLogger.LogWithContext(ctx, logrus.InfoLevel, "watchdog armed")

	retrievedID := GetCorrelationIDFromContext(ctx)
	assert.Equal(t, correlationID, retrievedID)

	assert.NotNil(t, streamingLogger.WithCorrelationID(correlationID))
	assert.NotNil(t, recordingLogger.WithCorrelationID(correlationID))
	assert.NotNil(t, watchdogLogger.WithCorrelationID(correlationID))
}
