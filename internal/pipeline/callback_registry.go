package pipeline

import (
	"sync"

	"github.com/YawnsDuzin/nvr-gstreamer/internal/logging"
)

// CallbackRegistry holds two observer lists — recording-state and
// connection-state — with explicit add/remove by observer identity, not
// closures, so de-duplication and unregister are reliable (§4.9, §9
// "callback fan-out implemented as lists of callables"). A mutex is taken
// briefly to snapshot observers before notification; notification itself
// runs unlocked so an observer-held lock cannot deadlock the controller.
type CallbackRegistry struct {
	logger *logging.Logger

	mu                  sync.Mutex
	recordingObservers  []RecordingObserver
	connectionObservers []ConnectionObserver
}

// NewCallbackRegistry creates an empty registry.
func NewCallbackRegistry(logger *logging.Logger) *CallbackRegistry {
	return &CallbackRegistry{logger: logger}
}

// RegisterRecordingObserver adds o if not already present. A no-op if o is
// already registered (§4.9 idempotence).
func (r *CallbackRegistry) RegisterRecordingObserver(o RecordingObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.recordingObservers {
		if existing == o {
			return
		}
	}
	r.recordingObservers = append(r.recordingObservers, o)
}

// UnregisterRecordingObserver removes o if present.
func (r *CallbackRegistry) UnregisterRecordingObserver(o RecordingObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.recordingObservers {
		if existing == o {
			r.recordingObservers = append(r.recordingObservers[:i], r.recordingObservers[i+1:]...)
			return
		}
	}
}

// RegisterConnectionObserver adds o if not already present.
func (r *CallbackRegistry) RegisterConnectionObserver(o ConnectionObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.connectionObservers {
		if existing == o {
			return
		}
	}
	r.connectionObservers = append(r.connectionObservers, o)
}

// UnregisterConnectionObserver removes o if present.
func (r *CallbackRegistry) UnregisterConnectionObserver(o ConnectionObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.connectionObservers {
		if existing == o {
			r.connectionObservers = append(r.connectionObservers[:i], r.connectionObservers[i+1:]...)
			return
		}
	}
}

// NotifyRecording iterates a snapshot of the recording observers taken under
// lock, notifying each in registration order with the lock released. A
// panicking observer is recovered, logged, and never prevents later
// observers from firing (§4.9).
func (r *CallbackRegistry) NotifyRecording(state RecordingState) {
	r.mu.Lock()
	snapshot := make([]RecordingObserver, len(r.recordingObservers))
	copy(snapshot, r.recordingObservers)
	r.mu.Unlock()

	for _, o := range snapshot {
		r.safeNotifyRecording(o, state)
	}
}

func (r *CallbackRegistry) safeNotifyRecording(o RecordingObserver, state RecordingState) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(logging.Fields{"camera_id": state.CameraID, "panic": rec}).
				Error("recording observer panicked, continuing with remaining observers")
		}
	}()
	o.OnRecordingState(state)
}

// NotifyConnection iterates a snapshot of the connection observers taken
// under lock, same swallow-panic contract as NotifyRecording.
func (r *CallbackRegistry) NotifyConnection(state ConnectionState) {
	r.mu.Lock()
	snapshot := make([]ConnectionObserver, len(r.connectionObservers))
	copy(snapshot, r.connectionObservers)
	r.mu.Unlock()

	for _, o := range snapshot {
		r.safeNotifyConnection(o, state)
	}
}

func (r *CallbackRegistry) safeNotifyConnection(o ConnectionObserver, state ConnectionState) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(logging.Fields{"camera_id": state.CameraID, "panic": rec}).
				Error("connection observer panicked, continuing with remaining observers")
		}
	}()
	o.OnConnectionState(state)
}

// Clear removes all observers, called on controller teardown to prevent
// leaks (§4.9).
func (r *CallbackRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordingObservers = nil
	r.connectionObservers = nil
}
