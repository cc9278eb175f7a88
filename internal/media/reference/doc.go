// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package reference turns raw media references into canonical local paths or
// remote URLs.
//
// Raw references arrive from the player shell in many shapes: plain paths,
// percent-encoded paths behind one or more app schemes (media://, lorapok://),
// file:// URLs, and network URLs that a wrapper scheme has been glued onto
// (media://x//http://host/a.mkv). Player UI state travels in the query
// string (t, startTime, transcode, audioStream, subStream) and is split off
// into Params.
//
// Normalization never fails. The worst case is a local path that does not
// exist, which the caller discovers when it stats the file.
package reference
