package util

import (
	"errors"
	"strings"
)

// ErrInvalidFileName is returned for names that are empty or attempt traversal.
var ErrInvalidFileName = errors.New("invalid file name")

// SanitizeFileName removes path separators and rejects traversal patterns.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrInvalidFileName
	}
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	if s == "" {
		return "", ErrInvalidFileName
	}
	return s, nil
}

// AttachmentName builds the download name shown to the user, e.g. "classic_resume.pdf".
func AttachmentName(base string) string {
	name, err := SanitizeFileName(strings.TrimSuffix(base, ".pdf") + ".pdf")
	if err != nil || name == ".pdf" {
		return "document.pdf"
	}
	return name
}
