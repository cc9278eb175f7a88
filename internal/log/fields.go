// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldSessionID = "session_id"
	FieldCastID    = "cast_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPID       = "pid"

	// Media fields
	FieldReference = "ref"
	FieldKind      = "kind"
	FieldExtension = "ext"
	FieldDecision  = "decision"
	FieldReason    = "reason"
	FieldCodec     = "codec"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / URL fields
	FieldPath = "path"
	FieldURL  = "url"
	FieldDir  = "dir"
)
