package pointer

import "strings"

const (
	ExtVideo   = ".revid"
	ExtAudio   = ".remusic"
	ExtImage   = ".repic"
	ExtDefault = ".refile"
)

// Extensions lists every recognized pointer extension.
var Extensions = []string{ExtVideo, ExtAudio, ExtImage, ExtDefault}

// ExtensionForMime classifies a mime type. First match wins.
func ExtensionForMime(mime string) string {
	switch {
	case strings.HasPrefix(mime, "video/"):
		return ExtVideo
	case strings.HasPrefix(mime, "audio/"):
		return ExtAudio
	case strings.HasPrefix(mime, "image/"):
		return ExtImage
	default:
		return ExtDefault
	}
}

// PathFor returns the pointer path for an original file. An empty mime
// selects the default extension.
func PathFor(originalPath, mime string) string {
	if mime == "" {
		return originalPath + ExtDefault
	}
	return originalPath + ExtensionForMime(mime)
}

// IsPointerPath reports whether path ends in a recognized pointer extension.
func IsPointerPath(path string) bool {
	for _, ext := range Extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// OriginalPath strips a pointer extension. Paths without one are returned unchanged.
func OriginalPath(pointerPath string) string {
	for _, ext := range Extensions {
		if strings.HasSuffix(pointerPath, ext) {
			return strings.TrimSuffix(pointerPath, ext)
		}
	}
	return pointerPath
}
