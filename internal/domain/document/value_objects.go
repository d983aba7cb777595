package document

import (
	"strings"
	"time"
)

// ContentTypePDF is the default payload content type
const ContentTypePDF = "application/pdf"

// UploadRequest is a request to persist one artifact
type UploadRequest struct {
	Payload      []byte
	RelativePath string
	ContentType  string
	DocumentKind Kind
}

// Normalize returns a copy with a clean relative path and a default content
// type. Backend clients only accept normalized requests.
func (r UploadRequest) Normalize() (UploadRequest, error) {
	if len(r.Payload) == 0 {
		return r, NewError(ErrKindInvalidInput, "upload request", "payload is empty", nil)
	}
	rel, err := CleanRelativePath(r.RelativePath)
	if err != nil {
		return r, err
	}
	if strings.HasSuffix(rel, "/") {
		return r, NewError(ErrKindInvalidInput, "upload request", "path must name a file: "+rel, nil)
	}
	r.RelativePath = rel
	if r.ContentType == "" {
		r.ContentType = ContentTypePDF
	}
	return r, nil
}

// FileName returns the last path segment
func (r UploadRequest) FileName() string {
	idx := strings.LastIndex(r.RelativePath, "/")
	return r.RelativePath[idx+1:]
}

// Dir returns the parent directory of the relative path, or "" at the root
func (r UploadRequest) Dir() string {
	idx := strings.LastIndex(r.RelativePath, "/")
	if idx < 0 {
		return ""
	}
	return r.RelativePath[:idx]
}

// MoveRequest relocates an artifact or folder within one backend
type MoveRequest struct {
	SourcePath      string
	DestinationPath string
}

// Validate checks that both paths are present and distinct
func (r MoveRequest) Validate() error {
	if strings.TrimSpace(r.SourcePath) == "" || strings.TrimSpace(r.DestinationPath) == "" {
		return NewError(ErrKindInvalidInput, "move request", "source and destination are required", nil)
	}
	if strings.Trim(r.SourcePath, "/") == strings.Trim(r.DestinationPath, "/") {
		return NewError(ErrKindInvalidInput, "move request", "source and destination are identical", nil)
	}
	return nil
}

// PrintJob hands a stored artifact to the print service
type PrintJob struct {
	Locator StorageLocator
	// PrinterName is optional; empty selects the service default printer
	PrinterName string
}

// FileEntry is one item of a directory listing
type FileEntry struct {
	Name         string    `json:"name"`
	RelativePath string    `json:"relative_path"`
	IsDir        bool      `json:"is_dir"`
	Size         int64     `json:"size"`
	ModifiedAt   time.Time `json:"modified_at,omitzero"`
}

// Session is an authenticated handle for the remote file server.
// ExpiresAt is nil for sessions that are logged out explicitly after use.
type Session struct {
	Token         string
	IssuedAt      time.Time
	ExpiresAt     *time.Time
	CacheEligible bool
}

// Expired reports whether a cached session can no longer be reused
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.Token == "" {
		return true
	}
	if s.ExpiresAt == nil {
		return false
	}
	return !now.Before(*s.ExpiresAt)
}

// String never prints the token
func (s *Session) String() string {
	if s == nil {
		return "Session(nil)"
	}
	return "Session(" + MaskSecret(s.Token) + ")"
}

// GoString never prints the token
func (s *Session) GoString() string {
	return s.String()
}

// MaskSecret returns a fixed-width mask that keeps at most the last two
// characters of a secret.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 6 {
		return "****"
	}
	return "****" + secret[len(secret)-2:]
}
