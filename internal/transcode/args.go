package transcode

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ManuGH/mediad/internal/decision"
)

// ArgsInput contains everything needed to build the ffmpeg argv.
type ArgsInput struct {
	Input string
	Spec  decision.TranscodeSpec

	// SubtitlePath and SubtitleOrdinal enable the burn-in filter. The
	// ordinal counts subtitle streams only (the filter's si option).
	SubtitlePath    string
	SubtitleOrdinal *int

	VideoBitrate string
	AudioBitrate string
	Preset       string
}

// BuildArgs returns the ffmpeg arguments for a real-time H.264/AAC
// fragmented MP4 encode to stdout.
func BuildArgs(in ArgsInput) []string {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
	}

	seek := 0.0
	if in.Spec.SeekSeconds != nil && *in.Spec.SeekSeconds > 0 {
		seek = *in.Spec.SeekSeconds
		// Input seeking: fast, lands on the preceding keyframe.
		args = append(args, "-ss", formatSeconds(seek))
	}

	args = append(args,
		"-i", in.Input,
		"-map", "0:v:0?",
	)
	if in.Spec.AudioStream != nil {
		args = append(args, "-map", fmt.Sprintf("0:%d", *in.Spec.AudioStream))
	} else {
		args = append(args, "-map", "0:a:0?")
	}

	if in.SubtitlePath != "" && in.SubtitleOrdinal != nil {
		args = append(args, "-vf", subtitleFilter(in.SubtitlePath, *in.SubtitleOrdinal, seek))
	}

	args = append(args,
		"-c:v", "libx264",
		"-preset", orDefault(in.Preset, DefaultPreset),
		"-tune", "zerolatency",
		"-b:v", orDefault(in.VideoBitrate, DefaultVideoBitrate),
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", orDefault(in.AudioBitrate, DefaultAudioBitrate),
		"-ac", "2",
		"-sn", "-dn",
		"-movflags", "frag_keyframe+empty_moov+default_base_moof",
		"-f", "mp4",
		"pipe:1",
	)
	return args
}

// subtitleFilter burns subtitle stream si of path into the video. With input
// seeking the decoded frames restart at zero, so timestamps are shifted back
// to source time for subtitle lookup and reset afterwards.
func subtitleFilter(path string, si int, seek float64) string {
	sub := fmt.Sprintf("subtitles=filename=%s:si=%d", escapeFilterValue(path), si)
	if seek <= 0 {
		return sub
	}
	offset := formatSeconds(seek)
	return fmt.Sprintf("setpts=PTS+%s/TB,%s,setpts=PTS-STARTPTS", offset, sub)
}

var (
	// optionEscaper quotes the characters special inside a filter option value.
	optionEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	// graphEscaper quotes the characters special to the filtergraph parser.
	graphEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
)

// escapeFilterValue applies both escaping levels so paths with drive
// letters, quotes and separators survive as a single option value.
func escapeFilterValue(v string) string {
	return graphEscaper.Replace(optionEscaper.Replace(v))
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
