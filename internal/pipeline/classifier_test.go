package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/YawnsDuzin/nvr-gstreamer/internal/config"
)

func TestClassify_ResourceNotFoundFromSourceIsRTSPNetwork(t *testing.T) {
	c := Classify(BusEvent{Domain: "resource", Code: "NOT_FOUND", SourceElement: "source"})
	assert.Equal(t, ErrorKindRTSPNetwork, c.Kind)
}

func TestClassify_NoSpaceLeftAlwaysDiskFull(t *testing.T) {
	c := Classify(BusEvent{Domain: "resource", Code: "NO_SPACE_LEFT", SourceElement: "muxer"})
	assert.Equal(t, ErrorKindDiskFull, c.Kind)
}

func TestClassify_ResourceOpenWriteFromMuxerIsStorageDisconnected(t *testing.T) {
	c := Classify(BusEvent{Domain: "resource", Code: "OPEN_WRITE", SourceElement: "muxer"})
	assert.Equal(t, ErrorKindStorageDisconnected, c.Kind)
}

func TestClassify_StreamDomainFromDecoderIsDecoder(t *testing.T) {
	c := Classify(BusEvent{Domain: "stream", SourceElement: "decoder"})
	assert.Equal(t, ErrorKindDecoder, c.Kind)
}

func TestClassify_CoreStateChangeFromSinkIsStorageDisconnected(t *testing.T) {
	c := Classify(BusEvent{Domain: "core", Code: "STATE_CHANGE", SourceElement: "sink"})
	assert.Equal(t, ErrorKindStorageDisconnected, c.Kind)
}

func TestClassify_VendorCodeFromSourceIsRTSPNetwork(t *testing.T) {
	c := Classify(BusEvent{SourceElement: "source", VendorCode: 7})
	assert.Equal(t, ErrorKindRTSPNetwork, c.Kind)
}

func TestClassify_PermissionDeniedTextFromMuxerIsStorageDisconnected(t *testing.T) {
	c := Classify(BusEvent{SourceElement: "muxer", Message: "could not write: permission denied"})
	assert.Equal(t, ErrorKindStorageDisconnected, c.Kind)
}

func TestClassify_MessageFallbackNoSpace(t *testing.T) {
	c := Classify(BusEvent{SourceElement: "unknown-elem", Message: "no space left on device"})
	assert.Equal(t, ErrorKindDiskFull, c.Kind)
}

func TestClassify_MessageFallbackVideoSink(t *testing.T) {
	c := Classify(BusEvent{SourceElement: "sink", Message: "failed to open output window"})
	assert.Equal(t, ErrorKindVideoSink, c.Kind)
}

func TestClassify_UnrecognizedFallsBackToUnknownWithBranchHint(t *testing.T) {
	c := Classify(BusEvent{SourceElement: "record_queue", Message: "mystery failure"})
	assert.Equal(t, ErrorKindUnknown, c.Kind)
	assert.Equal(t, BranchHintRecording, c.Branch)
}

func TestClassify_IsTotalNeverPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		Classify(BusEvent{})
	})
}

func TestResolveTransformMethod_MatchesSpecTable(t *testing.T) {
	cases := []struct {
		rotation int
		flip     string
		want     TransformMethod
	}{
		{0, "none", TransformIdentity},
		{0, "horizontal", TransformHFlip},
		{0, "vertical", TransformVFlip},
		{0, "both", Transform180},
		{90, "none", TransformCW90},
		{270, "horizontal", TransformCCW90},
		{180, "none", Transform180},
		{180, "horizontal", TransformVFlip},
		{180, "vertical", TransformHFlip},
	}

	for _, tc := range cases {
		got, err := ResolveTransformMethod(tc.rotation, config.FlipSetting(tc.flip))
		assert.NoError(t, err)
		assert.Equalf(t, tc.want, got, "rotation=%d flip=%s", tc.rotation, tc.flip)
	}
}
