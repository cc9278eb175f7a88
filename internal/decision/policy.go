package decision

import (
	"strings"
)

// Policy holds the configurable codec and container sets.
type Policy struct {
	NativeExtensions    []string `yaml:"nativeExtensions,omitempty" json:"nativeExtensions"`
	DeepCheckExtensions []string `yaml:"deepCheckExtensions,omitempty" json:"deepCheckExtensions"`
	SafeVideoCodecs     []string `yaml:"safeVideoCodecs,omitempty" json:"safeVideoCodecs"`
	UnsafeAudioCodecs   []string `yaml:"unsafeAudioCodecs,omitempty" json:"unsafeAudioCodecs"`
}

// DefaultPolicy returns the sets the playback surface is known to handle.
func DefaultPolicy() Policy {
	return Policy{
		NativeExtensions:    []string{"mp4", "webm", "ogg", "mp3", "wav", "aac", "flac", "m4a", "opus"},
		DeepCheckExtensions: []string{"mp4", "mov", "mkv"},
		SafeVideoCodecs:     []string{"h264", "vp8", "vp9", "av1"},
		UnsafeAudioCodecs:   []string{"ac3", "eac3", "dts", "truehd"},
	}
}

// normalized fills empty sets from DefaultPolicy and canonicalizes entries.
func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if len(p.NativeExtensions) == 0 {
		p.NativeExtensions = def.NativeExtensions
	}
	if len(p.DeepCheckExtensions) == 0 {
		p.DeepCheckExtensions = def.DeepCheckExtensions
	}
	if len(p.SafeVideoCodecs) == 0 {
		p.SafeVideoCodecs = def.SafeVideoCodecs
	}
	if len(p.UnsafeAudioCodecs) == 0 {
		p.UnsafeAudioCodecs = def.UnsafeAudioCodecs
	}
	return Policy{
		NativeExtensions:    normalizedExtensions(p.NativeExtensions),
		DeepCheckExtensions: normalizedExtensions(p.DeepCheckExtensions),
		SafeVideoCodecs:     normalizedCodecs(p.SafeVideoCodecs),
		UnsafeAudioCodecs:   normalizedCodecs(p.UnsafeAudioCodecs),
	}
}

func normalizedExtensions(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimPrefix(normalizeToken(v), "."); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func normalizedCodecs(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = canonicalCodec(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func canonicalCodec(raw string) string {
	v := normalizeToken(raw)
	switch v {
	case "h264", "avc", "avc1", "libx264":
		return "h264"
	case "hevc", "h265", "h.265", "hvc1", "hev1", "libx265":
		return "hevc"
	case "av1", "av01", "libsvtav1", "libaom-av1", "libdav1d":
		return "av1"
	case "vp8", "libvpx":
		return "vp8"
	case "vp9", "vp09", "libvpx-vp9":
		return "vp9"
	case "ac3", "ac-3", "a52":
		return "ac3"
	case "eac3", "e-ac-3", "ec-3":
		return "eac3"
	case "dts", "dca":
		return "dts"
	case "truehd", "mlp":
		return "truehd"
	default:
		return v
	}
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func contains(slice []string, value string) bool {
	for _, v := range slice {
		if v == value {
			return true
		}
	}
	return false
}
