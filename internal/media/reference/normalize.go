// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reference

import (
	"net/url"
	"runtime"
	"strings"
)

// Platform selects the local path fix-up rules.
type Platform int

const (
	// POSIX paths are rooted at "/".
	POSIX Platform = iota
	// DriveLetter paths start with "X:" and never carry a leading slash.
	DriveLetter
)

// HostPlatform returns the path convention of the running OS.
func HostPlatform() Platform {
	if runtime.GOOS == "windows" {
		return DriveLetter
	}
	return POSIX
}

// remoteSchemes are the network schemes that win over any wrapper.
var remoteSchemes = map[string]struct{}{
	"http":  {},
	"https": {},
	"smb":   {},
	"ftp":   {},
	"sftp":  {},
	"ftps":  {},
	"rtsp":  {},
	"rtp":   {},
	"mms":   {},
	"rtmp":  {},
}

// IsRemoteScheme reports whether scheme (any case) is a network scheme.
func IsRemoteScheme(scheme string) bool {
	_, ok := remoteSchemes[strings.ToLower(scheme)]
	return ok
}

// Normalize normalizes raw using the host platform's path rules.
func Normalize(raw string) Reference {
	return NormalizeFor(raw, HostPlatform())
}

// NormalizeFor normalizes raw using the given platform's path rules.
func NormalizeFor(raw string, p Platform) Reference {
	raw = strings.TrimSpace(raw)
	if start, ok := lastRemoteScheme(raw); ok {
		return remoteReference(raw[start:])
	}
	return normalizeLocal(raw, p)
}

func remoteReference(u string) Reference {
	u, params := splitPlayerState(u)
	return Reference{kind: KindRemote, path: u, params: params}
}

// lastRemoteScheme returns the offset of the rightmost "<scheme>://" token
// whose scheme is a network scheme.
func lastRemoteScheme(s string) (int, bool) {
	found, last := false, 0
	for off := 0; ; {
		i := strings.Index(s[off:], "://")
		if i < 0 {
			break
		}
		sep := off + i
		if start, ok := schemeStart(s, sep); ok && IsRemoteScheme(s[start:sep]) {
			found, last = true, start
		}
		off = sep + 3
	}
	return last, found
}

// schemeStart walks back from the "://" at sep over the maximal run of
// scheme characters. The run must be non-empty and begin with a letter.
func schemeStart(s string, sep int) (int, bool) {
	start := sep
	for start > 0 && isSchemeChar(s[start-1]) {
		start--
	}
	if start == sep || !isLetter(s[start]) {
		return 0, false
	}
	return start, true
}

// leadingScheme returns the length of a "<scheme>://" prefix with a scheme of
// two or more characters. A single letter is a drive, not a scheme.
func leadingScheme(s string) int {
	i := strings.Index(s, "://")
	if i < 2 || !isLetter(s[0]) {
		return 0
	}
	for j := 1; j < i; j++ {
		if !isSchemeChar(s[j]) {
			return 0
		}
	}
	return i + 3
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isSchemeChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '+' || c == '-' || c == '.'
}

// splitPlayerState removes player-state keys from the query of a remote URL.
// Everything else, including the encoding of kept pairs and the fragment, is
// left untouched.
func splitPlayerState(u string) (string, map[string]string) {
	params := map[string]string{}

	body, fragment, hasFragment := strings.Cut(u, "#")
	base, query, hasQuery := strings.Cut(body, "?")
	if !hasQuery {
		return u, params
	}

	kept := make([]string, 0, 4)
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		key, value := decodePair(pair)
		if _, ok := playerStateKeys[key]; ok {
			params[key] = value
			continue
		}
		kept = append(kept, pair)
	}

	out := base
	if len(kept) > 0 {
		out += "?" + strings.Join(kept, "&")
	}
	if hasFragment {
		out += "#" + fragment
	}
	return out, params
}

// normalizeLocal strips wrapper schemes and decodes the payload. A payload
// that only reveals a network URL once decoded is a remote reference.
func normalizeLocal(raw string, p Platform) Reference {
	s := raw
	for {
		n := leadingScheme(s)
		if n == 0 {
			break
		}
		s = s[n:]
	}

	params := map[string]string{}
	head, query, hasQuery := strings.Cut(s, "?")
	if hasQuery {
		s = head
		for _, pair := range strings.Split(query, "&") {
			if pair == "" {
				continue
			}
			key, value := decodePair(pair)
			params[key] = value
		}
	}

	if decoded, err := url.PathUnescape(s); err == nil {
		s = decoded
	}
	if start, ok := lastRemoteScheme(s); ok {
		u := s[start:]
		if hasQuery {
			u += "?" + query
		}
		return remoteReference(u)
	}

	switch p {
	case DriveLetter:
		if len(s) >= 3 && s[0] == '/' && isLetter(s[1]) && s[2] == ':' {
			s = s[1:]
		}
	default:
		if !strings.HasPrefix(s, "/") && !strings.Contains(s, "://") {
			s = "/" + s
		}
	}
	return Reference{kind: KindLocal, path: s, params: params}
}

func decodePair(pair string) (string, string) {
	key, value, _ := strings.Cut(pair, "=")
	if k, err := url.QueryUnescape(key); err == nil {
		key = k
	}
	if v, err := url.QueryUnescape(value); err == nil {
		value = v
	}
	return key, value
}
