package constants

import "strings"

// Format is the coarse kind of a document, used to route it to the vision or text path.
type Format string

const (
	IMAGE Format = "IMAGE"
	PDF   Format = "PDF"
	TXT   Format = "TXT"
)

// MediaTypes maps every supported extension (normalized, no dot) to its MIME type.
var MediaTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"txt":  "text/plain",
	"pdf":  "application/pdf",
}

// SupportedExtensions is the ordered list used in error messages.
var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".txt", ".pdf"}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns the document format for an extension, or "" when unsupported.
func MapExtToFormat(ext string) Format {
	switch NormalizeExt(ext) {
	case "jpg", "jpeg", "png", "gif", "webp":
		return IMAGE
	case "pdf":
		return PDF
	case "txt":
		return TXT
	default:
		return ""
	}
}

// MediaTypeForExt returns the MIME type for a supported extension.
func MediaTypeForExt(ext string) (string, bool) {
	mt, ok := MediaTypes[NormalizeExt(ext)]
	return mt, ok
}

// ExtForMediaType is the reverse lookup used when content was sniffed instead of named.
func ExtForMediaType(mediaType string) (string, bool) {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch mt {
	case "image/jpeg":
		return "jpg", true
	case "image/png":
		return "png", true
	case "image/gif":
		return "gif", true
	case "image/webp":
		return "webp", true
	case "text/plain":
		return "txt", true
	case "application/pdf":
		return "pdf", true
	}
	return "", false
}
