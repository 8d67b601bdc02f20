package pipeline

import "strings"

// BusEvent is the normalized error event the ErrorClassifier cascades over.
// In GStreamer terms this would arrive off the pipeline bus with a
// domain/code/source-element triple; here it is synthesized by MediaGraph's
// FFmpeg stderr parser and exit-status inspection (§12), preserving the same
// three-layer cascade shape the spec describes.
type BusEvent struct {
	Domain        string // "resource", "stream", "core"
	Code          string // e.g. "NOT_FOUND", "READ", "OPEN_WRITE", "OPEN_READ", "NO_SPACE_LEFT", "STATE_CHANGE"
	SourceElement string // "source", "muxer", "sink", "decoder"
	VendorCode    int
	Message       string
}

// Classification is the total result of classifying a BusEvent.
type Classification struct {
	Kind       ErrorKind
	Branch     BranchHint
	SourceElem string
	Raw        string
}

// rtspVendorCodes are the source-element vendor codes the second cascade
// layer recognizes as RTSP_NETWORK (§4.6 layer 2).
var rtspVendorCodes = map[int]bool{1: true, 7: true, 9: true, 10: true}

// Classify applies the three-layer cascade of §4.6. Classification is total:
// it never panics and always returns exactly one ErrorKind.
func Classify(ev BusEvent) Classification {
	msg := strings.ToLower(ev.Message)

	// Layer 1: domain + code.
	switch ev.Domain {
	case "resource":
		switch ev.Code {
		case "NO_SPACE_LEFT":
			return Classification{Kind: ErrorKindDiskFull, SourceElem: ev.SourceElement, Raw: ev.Message}
		case "NOT_FOUND", "READ", "OPEN_WRITE", "OPEN_READ":
			if ev.SourceElement == "source" {
				return Classification{Kind: ErrorKindRTSPNetwork, SourceElem: ev.SourceElement, Raw: ev.Message}
			}
			if isMuxOrSink(ev.SourceElement) {
				return Classification{Kind: ErrorKindStorageDisconnected, SourceElem: ev.SourceElement, Raw: ev.Message}
			}
		}
	case "stream":
		if ev.SourceElement == "source" {
			return Classification{Kind: ErrorKindRTSPNetwork, SourceElem: ev.SourceElement, Raw: ev.Message}
		}
		if ev.SourceElement == "decoder" {
			return Classification{Kind: ErrorKindDecoder, SourceElem: ev.SourceElement, Raw: ev.Message}
		}
	case "core":
		if ev.Code == "STATE_CHANGE" && isMuxOrSink(ev.SourceElement) {
			return Classification{Kind: ErrorKindStorageDisconnected, SourceElem: ev.SourceElement, Raw: ev.Message}
		}
	}

	// Layer 2: element name + vendor code / textual hallmarks.
	if ev.SourceElement == "source" && rtspVendorCodes[ev.VendorCode] {
		return Classification{Kind: ErrorKindRTSPNetwork, SourceElem: ev.SourceElement, Raw: ev.Message}
	}
	if isMuxOrSink(ev.SourceElement) && strings.Contains(msg, "could not write") &&
		(strings.Contains(msg, "permission denied") || strings.Contains(msg, "file descriptor")) {
		return Classification{Kind: ErrorKindStorageDisconnected, SourceElem: ev.SourceElement, Raw: ev.Message}
	}

	// Layer 3: message fallback.
	switch {
	case strings.Contains(msg, "no space"):
		return Classification{Kind: ErrorKindDiskFull, SourceElem: ev.SourceElement, Raw: ev.Message}
	case ev.SourceElement == "decoder" && strings.Contains(msg, "decode"):
		return Classification{Kind: ErrorKindDecoder, SourceElem: ev.SourceElement, Raw: ev.Message}
	case strings.Contains(msg, "videosink") || strings.Contains(msg, "output window"):
		return Classification{Kind: ErrorKindVideoSink, SourceElem: ev.SourceElement, Raw: ev.Message}
	}

	// Unknown: fold the original's RECORDING_BRANCH/STREAMING_BRANCH catch-alls
	// into UNKNOWN plus a branch hint (§13).
	branch := BranchHintNone
	switch ev.SourceElement {
	case "record_queue", "recording_valve", "muxer":
		branch = BranchHintRecording
	case "stream_queue", "streaming_valve", "sink":
		branch = BranchHintStreaming
	}
	return Classification{Kind: ErrorKindUnknown, Branch: branch, SourceElem: ev.SourceElement, Raw: ev.Message}
}

func isMuxOrSink(element string) bool {
	switch element {
	case "muxer", "sink", "record_queue", "recording_valve":
		return true
	}
	return false
}
