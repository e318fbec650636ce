package mime

import (
	"path"
	"strings"
)

// DefaultContentType is used for attachments whose type cannot be inferred.
const DefaultContentType = "application/octet-stream"

var extensionTypes = map[string]string{
	".bmp":  "image/bmp",
	".csv":  "text/csv",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".gif":  "image/gif",
	".gz":   "application/gzip",
	".htm":  "text/html",
	".html": "text/html",
	".ics":  "text/calendar",
	".jpeg": "image/jpeg",
	".jpg":  "image/jpeg",
	".json": "application/json",
	".mp3":  "audio/mpeg",
	".mp4":  "video/mp4",
	".pdf":  "application/pdf",
	".png":  "image/png",
	".svg":  "image/svg+xml",
	".tar":  "application/x-tar",
	".txt":  "text/plain",
	".webp": "image/webp",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xml":  "application/xml",
	".zip":  "application/zip",
}

// TypeByFilename infers a MIME type from the filename extension using a
// fixed built-in table. Unknown extensions return DefaultContentType.
func TypeByFilename(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	return DefaultContentType
}
