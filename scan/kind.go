package scan

import (
	"mime"
	"path"
	"strings"
)

// Extensions the builtin mime table does not always know. Kept as
// explicit maps so adding a format is a one-line change.
var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".tiff": true, ".tif": true, ".bmp": true, ".webp": true,
	".heic": true, ".heif": true,
}

var videoExts = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true,
	".wmv": true, ".m4v": true, ".3gp": true, ".webm": true,
	".mpg": true, ".mpeg": true, ".mts": true, ".m2ts": true,
}

// IsMedia reports whether a filename looks like a photo or video entry.
func IsMedia(filename string) bool {
	return IsImage(filename) || isVideo(filename)
}

// IsImage reports whether a filename names an image; only images are
// candidates for EXIF extraction.
func IsImage(filename string) bool {
	ext := strings.ToLower(path.Ext(filename))
	if imageExts[ext] {
		return true
	}
	return strings.HasPrefix(mime.TypeByExtension(ext), "image/")
}

func isVideo(filename string) bool {
	ext := strings.ToLower(path.Ext(filename))
	if videoExts[ext] {
		return true
	}
	return strings.HasPrefix(mime.TypeByExtension(ext), "video/")
}
