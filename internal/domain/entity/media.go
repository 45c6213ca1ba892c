package entity

import (
	"path/filepath"
	"strings"
)

type MediaKind string

const (
	MediaKindImage   MediaKind = "image"
	MediaKindVideo   MediaKind = "video"
	MediaKindUnknown MediaKind = "unknown"
)

// MaxFileSize is the upload ceiling enforced before a file is analyzed or
// protected. Protection buffers whole files, so this is also its memory ceiling.
const MaxFileSize int64 = 500 * 1024 * 1024

var videoExtensions = map[string]bool{
	"mp4": true,
	"avi": true,
	"mov": true,
	"mkv": true,
}

var allowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"mp4":  true,
	"avi":  true,
	"mov":  true,
	"mkv":  true,
}

func extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// IsVideoPath decides the analysis path from the extension alone. Anything that
// is not a known video container is attempted as an image.
func IsVideoPath(path string) bool {
	return videoExtensions[extension(path)]
}

// KindFromPath is the kind recorded in analysis history.
func KindFromPath(path string) MediaKind {
	ext := extension(path)
	switch {
	case ext == "":
		return MediaKindUnknown
	case videoExtensions[ext]:
		return MediaKindVideo
	default:
		return MediaKindImage
	}
}

func IsAllowedUpload(path string) bool {
	return allowedExtensions[extension(path)]
}
