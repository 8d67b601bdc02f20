package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSpy struct {
	states []RecordingState
}

func (s *recordingSpy) OnRecordingState(state RecordingState) {
	s.states = append(s.states, state)
}

type connectionSpy struct {
	states []ConnectionState
}

func (s *connectionSpy) OnConnectionState(state ConnectionState) {
	s.states = append(s.states, state)
}

type panickingRecordingObserver struct{}

func (panickingRecordingObserver) OnRecordingState(RecordingState) {
	panic("observer exploded")
}

func TestCallbackRegistry_NotifyRecording_DeliversToRegisteredObserver(t *testing.T) {
	r := NewCallbackRegistry(newTestLogger())
	spy := &recordingSpy{}
	r.RegisterRecordingObserver(spy)

	r.NotifyRecording(RecordingState{CameraID: "cam-1", IsRecording: true})

	require.Len(t, spy.states, 1)
	assert.True(t, spy.states[0].IsRecording)
}

func TestCallbackRegistry_RegisterRecordingObserver_IsIdempotent(t *testing.T) {
	r := NewCallbackRegistry(newTestLogger())
	spy := &recordingSpy{}
	r.RegisterRecordingObserver(spy)
	r.RegisterRecordingObserver(spy)

	r.NotifyRecording(RecordingState{CameraID: "cam-1", IsRecording: true})

	assert.Len(t, spy.states, 1)
}

func TestCallbackRegistry_UnregisterRecordingObserver_StopsDelivery(t *testing.T) {
	r := NewCallbackRegistry(newTestLogger())
	spy := &recordingSpy{}
	r.RegisterRecordingObserver(spy)
	r.UnregisterRecordingObserver(spy)

	r.NotifyRecording(RecordingState{CameraID: "cam-1", IsRecording: true})

	assert.Empty(t, spy.states)
}

func TestCallbackRegistry_NotifyRecording_SwallowsPanicAndContinues(t *testing.T) {
	r := NewCallbackRegistry(newTestLogger())
	r.RegisterRecordingObserver(panickingRecordingObserver{})
	spy := &recordingSpy{}
	r.RegisterRecordingObserver(spy)

	assert.NotPanics(t, func() {
		r.NotifyRecording(RecordingState{CameraID: "cam-1", IsRecording: true})
	})
	assert.Len(t, spy.states, 1)
}

func TestCallbackRegistry_NotifyConnection_DeliversInRegistrationOrder(t *testing.T) {
	r := NewCallbackRegistry(newTestLogger())
	var order []string
	a := &orderedConnectionObserver{name: "a", order: &order}
	b := &orderedConnectionObserver{name: "b", order: &order}
	r.RegisterConnectionObserver(a)
	r.RegisterConnectionObserver(b)

	r.NotifyConnection(ConnectionState{CameraID: "cam-1", IsConnected: true})

	assert.Equal(t, []string{"a", "b"}, order)
}

type orderedConnectionObserver struct {
	name  string
	order *[]string
}

func (o *orderedConnectionObserver) OnConnectionState(ConnectionState) {
	*o.order = append(*o.order, o.name)
}

func TestCallbackRegistry_Clear_RemovesAllObservers(t *testing.T) {
	r := NewCallbackRegistry(newTestLogger())
	spy := &connectionSpy{}
	r.RegisterConnectionObserver(spy)

	r.Clear()
	r.NotifyConnection(ConnectionState{CameraID: "cam-1", IsConnected: true})

	assert.Empty(t, spy.states)
}
