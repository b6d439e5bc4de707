package taskcard

import (
	"errors"
	"testing"
)

func TestValidateAttachment(t *testing.T) {
	cases := []struct {
		name        string
		filename    string
		contentType string
		wantOK      bool
	}{
		{"pdf", "report.pdf", "application/pdf", true},
		{"image without content type", "photo.jpg", "", true},
		{"executable", "run.exe", "application/octet-stream", false},
		{"no extension", "report", "application/pdf", false},
		{"mime mismatch", "report.pdf", "text/html", false},
		{"empty name", "", "application/pdf", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateAttachment(tc.filename, tc.contentType)
			if tc.wantOK && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.wantOK {
				var vErr *ValidationError
				if !errors.As(err, &vErr) {
					t.Errorf("expected ValidationError, got %v", err)
				}
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd": "etcpasswd",
		"отчёт.pdf":        "отчёт.pdf",
		"a\\b/c.txt":       "abc.txt",
	}
	for in, want := range cases {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
