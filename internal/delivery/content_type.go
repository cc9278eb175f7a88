package delivery

import (
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var contentTypes = map[string]string{
	"mp4":  "video/mp4",
	"m4v":  "video/mp4",
	"webm": "video/webm",
	"ogg":  "video/ogg",
	"mkv":  "video/x-matroska",
	"mov":  "video/quicktime",
	"avi":  "video/x-msvideo",
	"flv":  "video/x-flv",
	"wmv":  "video/x-ms-wmv",
	"mpg":  "video/mpeg",
	"mpeg": "video/mpeg",
	"m2ts": "video/mp2t",
	"mts":  "video/mp2t",
	"ts":   "video/mp2t",
	"3gp":  "video/3gpp",
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"aac":  "audio/aac",
	"flac": "audio/flac",
	"m4a":  "audio/mp4",
	"opus": "audio/opus",
	"wma":  "audio/x-ms-wma",
}

// ContentTypeForExtension returns the media type for a known extension.
func ContentTypeForExtension(ext string) (string, bool) {
	ct, ok := contentTypes[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return ct, ok
}

// contentType resolves the media type from the extension, falling back to
// sniffing the head of the file. The reader is rewound afterwards.
func contentType(ext string, f io.ReadSeeker) string {
	if ct, ok := ContentTypeForExtension(ext); ok {
		return ct
	}
	mt, err := mimetype.DetectReader(f)
	if _, serr := f.Seek(0, io.SeekStart); serr != nil || err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}
