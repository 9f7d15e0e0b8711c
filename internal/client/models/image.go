package models

import (
	"encoding/base64"
	"path/filepath"
	"strings"
)

// AllowedExtensions lists the image formats the generation service accepts.
var AllowedExtensions = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"webp": "image/webp",
	"heic": "image/heic",
	"heif": "image/heif",
}

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// EncodeImage renders content as a data URL, the form stored in history.
func EncodeImage(name string, content []byte) string {
	mime, ok := AllowedExtensions[Extension(name)]
	if !ok {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(content)
}
