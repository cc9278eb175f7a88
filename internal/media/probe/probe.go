// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package probe runs ffprobe against a media reference and reports its
// streams. Results are computed fresh on every call.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/language"

	xglog "github.com/ManuGH/mediad/internal/log"
	"github.com/ManuGH/mediad/internal/media/reference"
	"github.com/ManuGH/mediad/internal/metrics"
	"github.com/ManuGH/mediad/internal/telemetry"
)

// ErrProbeFailed wraps every failure to obtain usable stream metadata.
var ErrProbeFailed = errors.New("probe failed")

// DefaultTimeout bounds a single ffprobe run.
const DefaultTimeout = 15 * time.Second

const maxStderr = 4096

// StreamType is the ffprobe codec_type of a stream.
type StreamType string

const (
	StreamVideo    StreamType = "video"
	StreamAudio    StreamType = "audio"
	StreamSubtitle StreamType = "subtitle"
	StreamOther    StreamType = "other"
)

// Stream describes one elementary stream of a container.
type Stream struct {
	Index       int        `json:"index"`
	Type        StreamType `json:"type"`
	Codec       string     `json:"codec"`
	Language    string     `json:"language,omitempty"`
	Title       string     `json:"title,omitempty"`
	AttachedPic bool       `json:"attachedPic,omitempty"`
	Channels    int        `json:"channels,omitempty"`
	Width       int        `json:"width,omitempty"`
	Height      int        `json:"height,omitempty"`
}

// Result is the parsed output of one probe.
type Result struct {
	Duration  float64  `json:"duration"`
	Container string   `json:"container"`
	Streams   []Stream `json:"streams"`
}

// SubtitleOrdinal maps an absolute stream index to its position among the
// subtitle streams (the "si" argument of the subtitles filter).
func (r *Result) SubtitleOrdinal(index int) (int, bool) {
	n := 0
	for _, s := range r.Streams {
		if s.Type != StreamSubtitle {
			continue
		}
		if s.Index == index {
			return n, true
		}
		n++
	}
	return 0, false
}

// Prober shells out to ffprobe.
type Prober struct {
	bin     string
	timeout time.Duration
	logger  zerolog.Logger
}

// New returns a Prober using the given ffprobe binary ("ffprobe" resolves via
// PATH). A non-positive timeout selects DefaultTimeout.
func New(bin string, timeout time.Duration) *Prober {
	if strings.TrimSpace(bin) == "" {
		bin = "ffprobe"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		bin:     bin,
		timeout: timeout,
		logger:  xglog.WithComponent("probe"),
	}
}

// Probe inspects the media behind ref.
func (p *Prober) Probe(ctx context.Context, ref reference.Reference) (res *Result, err error) {
	target, err := Target(ref)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "media.probe",
		telemetry.ReferenceAttributes(string(ref.Kind()), ref.Extension())...)
	start := time.Now()
	defer func() {
		metrics.ObserveProbe(time.Since(start).Seconds(), err == nil)
		if res != nil {
			span.SetAttributes(
				attribute.Int(telemetry.ProbeStreamsKey, len(res.Streams)),
				attribute.Float64(telemetry.ProbeDurationKey, res.Duration),
			)
		}
		telemetry.EndSpan(span, err)
	}()

	return p.run(ctx, target)
}

// Target returns the argument handed to ffprobe for ref. Remote URLs are
// re-serialized so ffprobe sees a well-formed URL.
func Target(ref reference.Reference) (string, error) {
	if !ref.IsRemote() {
		return ref.Path(), nil
	}
	u, err := url.Parse(ref.Path())
	if err != nil {
		return "", fmt.Errorf("%w: invalid url: %v", ErrProbeFailed, err)
	}
	return u.String(), nil
}

func (p *Prober) run(ctx context.Context, target string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		target,
	}

	// #nosec G204 -- binary is operator configured; target is passed as a single argv entry
	cmd := exec.CommandContext(ctx, p.bin, args...)
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		errStr := stderr.String()
		if len(errStr) > maxStderr {
			errStr = errStr[:maxStderr] + "..."
		}
		p.logger.Debug().Err(err).Str(xglog.FieldPath, target).Str("stderr", errStr).Msg("ffprobe failed")
		return nil, fmt.Errorf("%w: ffprobe: %v (stderr: %s)", ErrProbeFailed, err, errStr)
	}

	res, err := Parse(out)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Parse decodes ffprobe's JSON output.
func Parse(data []byte) (*Result, error) {
	var raw probeData
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: json decode: %v", ErrProbeFailed, err)
	}
	if len(raw.Streams) == 0 {
		return nil, fmt.Errorf("%w: no streams", ErrProbeFailed)
	}

	res := &Result{
		Container: canonicalContainer(raw.Format.FormatName),
		Streams:   make([]Stream, 0, len(raw.Streams)),
	}
	if raw.Format.Duration != "" {
		if d, err := strconv.ParseFloat(raw.Format.Duration, 64); err == nil {
			res.Duration = d
		}
	}

	for _, s := range raw.Streams {
		res.Streams = append(res.Streams, Stream{
			Index:       s.Index,
			Type:        streamType(s.CodecType),
			Codec:       strings.ToLower(strings.TrimSpace(s.CodecName)),
			Language:    canonicalLanguage(s.Tags.Language),
			Title:       s.Tags.Title,
			AttachedPic: s.Disposition.AttachedPic == 1,
			Channels:    s.Channels,
			Width:       s.Width,
			Height:      s.Height,
		})
	}
	return res, nil
}

func streamType(codecType string) StreamType {
	switch StreamType(codecType) {
	case StreamVideo, StreamAudio, StreamSubtitle:
		return StreamType(codecType)
	default:
		return StreamOther
	}
}

// canonicalLanguage turns ffprobe's ISO 639-2 tags ("eng", "ger") into BCP 47
// ("en", "de"). Unknown tags are kept as lowercase text.
func canonicalLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	t, err := language.Parse(tag)
	if err != nil {
		return strings.ToLower(tag)
	}
	return t.String()
}

// canonicalContainer picks the first token of ffprobe's comma list, preferring
// mpegts -> ts.
func canonicalContainer(formatName string) string {
	canonical := ""
	for _, p := range strings.Split(formatName, ",") {
		t := strings.TrimSpace(p)
		if t == "mpegts" {
			return "ts"
		}
		if canonical == "" && t != "" {
			canonical = t
		}
	}
	return canonical
}

type probeData struct {
	Streams []struct {
		Index       int    `json:"index"`
		CodecType   string `json:"codec_type"`
		CodecName   string `json:"codec_name"`
		Channels    int    `json:"channels,omitempty"`
		Width       int    `json:"width,omitempty"`
		Height      int    `json:"height,omitempty"`
		Disposition struct {
			AttachedPic int `json:"attached_pic"`
		} `json:"disposition"`
		Tags struct {
			Language string `json:"language"`
			Title    string `json:"title"`
		} `json:"tags"`
	} `json:"streams"`
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}
