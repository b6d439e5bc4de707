package taskcard

import (
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".txt":  true,
	".xls":  true,
	".xlsx": true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".zip":  true,
}

var allowedMimeTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/plain":               true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"image/png":       true,
	"image/jpeg":      true,
	"application/zip": true,
}

// SanitizeFilename убирает из имени файла пути и управляющие символы.
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "..", "")
	filename = strings.ReplaceAll(filename, "/", "")
	filename = strings.ReplaceAll(filename, "\\", "")

	var builder strings.Builder
	for _, r := range filename {
		if r >= 32 && r != 127 {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

// ValidateAttachment проверяет имя и MIME-тип вложения по allow-листам.
func ValidateAttachment(filename, contentType string) error {
	if filename == "" || len(filename) > 255 || !utf8.ValidString(filename) {
		return validationf("недопустимое имя файла")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || !allowedExtensions[ext] {
		return validationf("тип файла %q не поддерживается", ext)
	}

	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil || !allowedMimeTypes[mediaType] {
			return validationf("MIME-тип %q не поддерживается", contentType)
		}
	}

	return nil
}
