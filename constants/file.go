package constants

import "strings"

const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEGIF  = "image/gif"
	MIMEPDF  = "application/pdf"
)

// AllowedMIMETypes is the upload allow-list, checked against sniffed content.
var AllowedMIMETypes = map[string]struct{}{
	MIMEJPEG: {},
	MIMEPNG:  {},
	MIMEGIF:  {},
	MIMEPDF:  {},
}

// AllowedExtensions holds the file extensions picked up by inbox scans.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
}

const (
	DefaultMaxUploadBytes = 16 << 20
	DefaultRasterDPI      = 300
	DefaultJPEGQuality    = 95
	DefaultThumbnailSize  = 800
)

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ExtForMIME returns the extension (with dot) used when storing a file of the given type.
func ExtForMIME(mime string) string {
	switch mime {
	case MIMEJPEG:
		return ".jpg"
	case MIMEPNG:
		return ".png"
	case MIMEGIF:
		return ".gif"
	case MIMEPDF:
		return ".pdf"
	default:
		return ""
	}
}
