// Package decision chooses between passthrough delivery and real-time
// transcoding for a normalized media reference.
package decision

import (
	"github.com/ManuGH/mediad/internal/media/probe"
	"github.com/ManuGH/mediad/internal/media/reference"
)

type Kind string

const (
	KindPassthrough Kind = "passthrough"
	KindTranscode   Kind = "transcode"
)

type Reason string

const (
	ReasonForced           Reason = "forced"
	ReasonRemoteNative     Reason = "remote_native"
	ReasonRemoteNotNative  Reason = "remote_not_native"
	ReasonNotNative        Reason = "not_native"
	ReasonUnsafeVideoCodec Reason = "unsafe_video_codec"
	ReasonUnsafeAudioCodec Reason = "unsafe_audio_codec"
	ReasonProbeFailed      Reason = "probe_failed"
	ReasonCodecsSafe       Reason = "codecs_safe"
	ReasonNative           Reason = "native"
)

// TranscodeSpec carries the player-requested encoder options.
type TranscodeSpec struct {
	SeekSeconds    *float64 `json:"seekSeconds,omitempty"`
	AudioStream    *int     `json:"audioStream,omitempty"`
	SubtitleStream *int     `json:"subtitleStream,omitempty"`
	Forced         bool     `json:"forced"`
}

// ProbeFunc is invoked at most once, and only for deep-check containers.
type ProbeFunc func() (*probe.Result, error)

type Input struct {
	Ref       reference.Reference
	Extension string
	Probe     ProbeFunc
	Params    RequestParams
	Policy    Policy
}

type Decision struct {
	Kind   Kind           `json:"kind"`
	Spec   *TranscodeSpec `json:"spec,omitempty"`
	Reason Reason         `json:"reason"`
	// Detail names the offending codec or the probe error, when there is one.
	Detail string `json:"detail,omitempty"`
}

// Decide applies the delivery policy. The first matching rule wins:
//
//  1. forced transcode
//  2. remote sources: passthrough iff the extension is native, never probed
//  3. non-native extension: transcode
//  4. deep-check extension: probe, transcode on unsafe codecs or probe failure
//  5. passthrough
func Decide(in Input) Decision {
	ext := normalizeToken(in.Extension)
	if ext == "" {
		ext = in.Ref.Extension()
	}
	policy := in.Policy.normalized()

	if in.Params.ForceTranscode {
		return transcode(in.Params, ReasonForced, "")
	}

	if in.Ref.IsRemote() {
		if contains(policy.NativeExtensions, ext) {
			return passthrough(ReasonRemoteNative)
		}
		return transcode(in.Params, ReasonRemoteNotNative, ext)
	}

	if !contains(policy.NativeExtensions, ext) {
		return transcode(in.Params, ReasonNotNative, ext)
	}

	if contains(policy.DeepCheckExtensions, ext) {
		if in.Probe == nil {
			return transcode(in.Params, ReasonProbeFailed, "no prober")
		}
		res, err := in.Probe()
		if err != nil || res == nil {
			detail := "empty result"
			if err != nil {
				detail = err.Error()
			}
			return transcode(in.Params, ReasonProbeFailed, detail)
		}
		if reason, codec, unsafe := policy.unsafeStream(res); unsafe {
			return transcode(in.Params, reason, codec)
		}
		return passthrough(ReasonCodecsSafe)
	}

	return passthrough(ReasonNative)
}

func (p Policy) unsafeStream(res *probe.Result) (Reason, string, bool) {
	for _, s := range res.Streams {
		switch s.Type {
		case probe.StreamVideo:
			if s.AttachedPic {
				continue
			}
			if c := canonicalCodec(s.Codec); !contains(p.SafeVideoCodecs, c) {
				return ReasonUnsafeVideoCodec, c, true
			}
		case probe.StreamAudio:
			if c := canonicalCodec(s.Codec); contains(p.UnsafeAudioCodecs, c) {
				return ReasonUnsafeAudioCodec, c, true
			}
		}
	}
	return "", "", false
}

func passthrough(reason Reason) Decision {
	return Decision{Kind: KindPassthrough, Reason: reason}
}

func transcode(params RequestParams, reason Reason, detail string) Decision {
	return Decision{
		Kind:   KindTranscode,
		Spec:   params.Spec(),
		Reason: reason,
		Detail: detail,
	}
}
