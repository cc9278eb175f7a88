package decision

import (
	"math"
	"strconv"
	"strings"

	"github.com/ManuGH/mediad/internal/media/reference"
)

// RequestParams is the player state extracted from a reference's query.
type RequestParams struct {
	ForceTranscode bool
	SeekSeconds    *float64
	AudioStream    *int
	SubtitleStream *int
}

// ParamsFromReference reads transcode, t/startTime, audioStream and
// subStream. Malformed values are ignored.
func ParamsFromReference(ref reference.Reference) RequestParams {
	var p RequestParams

	if v, ok := ref.Param(reference.ParamTranscode); ok {
		switch normalizeToken(v) {
		case "true", "1":
			p.ForceTranscode = true
		}
	}

	for _, key := range []string{reference.ParamSeek, reference.ParamStartTime} {
		v, ok := ref.Param(key)
		if !ok {
			continue
		}
		if s, ok := parseSeconds(v); ok {
			p.SeekSeconds = &s
			break
		}
	}

	if v, ok := ref.Param(reference.ParamAudioStream); ok {
		if i, ok := parseIndex(v); ok {
			p.AudioStream = &i
		}
	}
	if v, ok := ref.Param(reference.ParamSubtitleStream); ok {
		if i, ok := parseIndex(v); ok {
			p.SubtitleStream = &i
		}
	}
	return p
}

// Spec converts the request parameters to a transcode spec.
func (p RequestParams) Spec() *TranscodeSpec {
	return &TranscodeSpec{
		SeekSeconds:    p.SeekSeconds,
		AudioStream:    p.AudioStream,
		SubtitleStream: p.SubtitleStream,
		Forced:         p.ForceTranscode,
	}
}

func parseSeconds(v string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return f, true
}

func parseIndex(v string) (int, bool) {
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}
