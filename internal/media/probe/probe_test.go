// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package probe

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mediad/internal/media/reference"
)

const mkvFixture = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080},
    {"index": 1, "codec_type": "audio", "codec_name": "AC3", "channels": 6, "tags": {"language": "eng", "title": "Surround"}},
    {"index": 2, "codec_type": "subtitle", "codec_name": "subrip", "tags": {"language": "und"}},
    {"index": 3, "codec_type": "subtitle", "codec_name": "ass", "tags": {"language": "fra"}},
    {"index": 4, "codec_type": "video", "codec_name": "mjpeg", "disposition": {"attached_pic": 1}},
    {"index": 5, "codec_type": "attachment", "codec_name": "ttf"}
  ],
  "format": {"duration": "5400.250000", "format_name": "matroska,webm"}
}`

func TestParse(t *testing.T) {
	t.Parallel()

	res, err := Parse([]byte(mkvFixture))
	require.NoError(t, err)

	want := &Result{
		Duration:  5400.25,
		Container: "matroska",
		Streams: []Stream{
			{Index: 0, Type: StreamVideo, Codec: "h264", Width: 1920, Height: 1080},
			{Index: 1, Type: StreamAudio, Codec: "ac3", Language: "en", Title: "Surround", Channels: 6},
			{Index: 2, Type: StreamSubtitle, Codec: "subrip", Language: "und"},
			{Index: 3, Type: StreamSubtitle, Codec: "ass", Language: "fr"},
			{Index: 4, Type: StreamVideo, Codec: "mjpeg", AttachedPic: true},
			{Index: 5, Type: StreamOther, Codec: "ttf"},
		},
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFailures(t *testing.T) {
	t.Parallel()

	for name, input := range map[string]string{
		"not json":   "ffprobe: invalid data",
		"no streams": `{"streams": [], "format": {"format_name": "mp4"}}`,
	} {
		_, err := Parse([]byte(input))
		if !errors.Is(err, ErrProbeFailed) {
			t.Errorf("%s: expected ErrProbeFailed, got %v", name, err)
		}
	}
}

func TestSubtitleOrdinal(t *testing.T) {
	t.Parallel()

	res, err := Parse([]byte(mkvFixture))
	require.NoError(t, err)

	si, ok := res.SubtitleOrdinal(3)
	assert.True(t, ok)
	assert.Equal(t, 1, si)

	_, ok = res.SubtitleOrdinal(1)
	assert.False(t, ok, "audio stream must not map to a subtitle ordinal")
}

func TestCanonicalContainer(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "mov", canonicalContainer("mov,mp4,m4a,3gp,3g2,mj2"))
	assert.Equal(t, "ts", canonicalContainer("mpegts"))
	assert.Equal(t, "", canonicalContainer(""))
}

func TestTarget(t *testing.T) {
	t.Parallel()

	got, err := Target(reference.NormalizeFor("media:///srv/a%20b.mkv", reference.POSIX))
	require.NoError(t, err)
	assert.Equal(t, "/srv/a b.mkv", got)

	got, err = Target(reference.NormalizeFor("media://x//http://host/a b.mkv?t=3", reference.POSIX))
	require.NoError(t, err)
	assert.Equal(t, "http://host/a%20b.mkv", got)
}
