// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// Reference attributes
	ReferenceKindKey      = "media.reference.kind"
	ReferenceExtensionKey = "media.reference.extension"

	// Decision attributes
	DecisionKindKey   = "media.decision.kind"
	DecisionReasonKey = "media.decision.reason"

	// Probe attributes
	ProbeStreamsKey  = "media.probe.streams"
	ProbeDurationKey = "media.probe.duration_s"

	// Transcoding attributes
	TranscodeSessionKey  = "transcode.session_id"
	TranscodeSeekKey     = "transcode.seek_s"
	TranscodeAudioKey    = "transcode.audio_stream"
	TranscodeSubtitleKey = "transcode.subtitle_stream"
	TranscodeStateKey    = "transcode.state"
	TranscodeBytesKey    = "transcode.bytes"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// ReferenceAttributes creates reference-related span attributes.
func ReferenceAttributes(kind, extension string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ReferenceKindKey, kind),
		attribute.String(ReferenceExtensionKey, extension),
	}
}

// DecisionAttributes creates delivery-decision span attributes.
func DecisionAttributes(kind, reason string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(DecisionKindKey, kind),
		attribute.String(DecisionReasonKey, reason),
	}
}

// TranscodeAttributes creates transcoding-related span attributes. Negative
// stream indexes and seek values mean "not requested" and are omitted.
func TranscodeAttributes(sessionID string, seek float64, audio, subtitle int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	attrs = append(attrs, attribute.String(TranscodeSessionKey, sessionID))
	if seek >= 0 {
		attrs = append(attrs, attribute.Float64(TranscodeSeekKey, seek))
	}
	if audio >= 0 {
		attrs = append(attrs, attribute.Int(TranscodeAudioKey, audio))
	}
	if subtitle >= 0 {
		attrs = append(attrs, attribute.Int(TranscodeSubtitleKey, subtitle))
	}
	return attrs
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
