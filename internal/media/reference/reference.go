// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reference

import (
	"encoding/json"
	"maps"
	"net/url"
	"strings"
)

// Kind distinguishes files on disk from network sources.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// Player-state query keys. They steer playback and are never forwarded to a
// remote origin.
const (
	ParamSeek           = "t"
	ParamStartTime      = "startTime"
	ParamTranscode      = "transcode"
	ParamAudioStream    = "audioStream"
	ParamSubtitleStream = "subStream"
)

var playerStateKeys = map[string]struct{}{
	ParamSeek:           {},
	ParamStartTime:      {},
	ParamTranscode:      {},
	ParamAudioStream:    {},
	ParamSubtitleStream: {},
}

// Reference is a normalized media reference. It is immutable; Params returns
// a copy.
type Reference struct {
	kind   Kind
	path   string
	params map[string]string
}

// Kind reports whether the reference is a local file or a remote URL.
func (r Reference) Kind() Kind { return r.kind }

// IsRemote is shorthand for Kind() == KindRemote.
func (r Reference) IsRemote() bool { return r.kind == KindRemote }

// Path returns the local filesystem path or the remote URL.
func (r Reference) Path() string { return r.path }

// String implements fmt.Stringer.
func (r Reference) String() string { return r.path }

// Params returns a copy of the extracted query parameters.
func (r Reference) Params() map[string]string {
	out := make(map[string]string, len(r.params))
	maps.Copy(out, r.params)
	return out
}

// Param returns a single extracted query parameter.
func (r Reference) Param(key string) (string, bool) {
	v, ok := r.params[key]
	return v, ok
}

// Extension returns the lowercase file extension without the leading dot,
// taken from the file name or the URL path. Empty when there is none.
func (r Reference) Extension() string {
	p := r.path
	if r.kind == KindRemote {
		if u, err := url.Parse(p); err == nil {
			p = u.Path
		} else {
			p = cutAny(p, "?#")
		}
	}
	return extensionOf(p)
}

// MarshalJSON renders the reference for API responses.
func (r Reference) MarshalJSON() ([]byte, error) {
	params := r.params
	if params == nil {
		params = map[string]string{}
	}
	return json.Marshal(struct {
		Kind   Kind              `json:"kind"`
		Path   string            `json:"path"`
		Params map[string]string `json:"params"`
	}{r.kind, r.path, params})
}

func extensionOf(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		p = p[i+1:]
	}
	i := strings.LastIndexByte(p, '.')
	if i < 0 || i == len(p)-1 {
		return ""
	}
	return strings.ToLower(p[i+1:])
}

func cutAny(s, chars string) string {
	if i := strings.IndexAny(s, chars); i >= 0 {
		return s[:i]
	}
	return s
}
