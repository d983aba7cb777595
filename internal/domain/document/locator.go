package document

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Locator schemes
const (
	SchemeRemote       = "remote://"
	SchemeLegacyRemote = "synology://"
	SchemeObject       = "s3://"
)

var bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// StorageLocator identifies where an artifact was stored.
// RelativePath is stable across backends; AbsoluteURI is backend-specific
// and, for the remote file server, may embed a transient session id.
type StorageLocator struct {
	Backend      BackendKind `json:"backend"`
	RelativePath string      `json:"relative_path"`
	AbsoluteURI  string      `json:"absolute_uri,omitempty"`
	// Bucket and Key are only set for object store locators. Key is the full
	// object key, including any key prefix of the store.
	Bucket   string `json:"bucket,omitempty"`
	Key      string `json:"key,omitempty"`
	SizeHint int64  `json:"size_hint,omitempty"`
}

// String returns the canonical locator form handed to downstream consumers
func (l StorageLocator) String() string {
	switch l.Backend {
	case BackendRemoteFile:
		return SchemeRemote + l.RelativePath
	case BackendObjectStore:
		key := l.ObjectKey()
		if l.Bucket == "" {
			return SchemeObject + key
		}
		return SchemeObject + l.Bucket + "/" + key
	}
	return l.RelativePath
}

// ObjectKey returns the object key of an object store locator, falling back
// to RelativePath when no key was recorded.
func (l StorageLocator) ObjectKey() string {
	if l.Key != "" {
		return l.Key
	}
	return l.RelativePath
}

// IsZero reports whether the locator is empty
func (l StorageLocator) IsZero() bool {
	return l.Backend == "" && l.RelativePath == ""
}

// NewRemoteLocator builds a locator for the remote file server
func NewRemoteLocator(relativePath, absoluteURI string, size int64) StorageLocator {
	return StorageLocator{
		Backend:      BackendRemoteFile,
		RelativePath: relativePath,
		AbsoluteURI:  absoluteURI,
		SizeHint:     size,
	}
}

// NewObjectLocator builds a locator for the object store. key is the object
// key that was written; relativePath is that key without the store's prefix.
func NewObjectLocator(bucket, key, relativePath, absoluteURI string, size int64) StorageLocator {
	return StorageLocator{
		Backend:      BackendObjectStore,
		RelativePath: relativePath,
		AbsoluteURI:  absoluteURI,
		Bucket:       bucket,
		Key:          key,
		SizeHint:     size,
	}
}

// ParseLocator accepts any of the supported string forms:
//
//	remote://klanten/acme/2025/facturen/INV-001.pdf
//	synology://klanten/acme/2025/facturen/INV-001.pdf
//	s3://bucket/klanten/acme/2025/facturen/INV-001.pdf
//	https://bucket.s3.eu-west-1.amazonaws.com/klanten/...
//	https://s3.eu-west-1.amazonaws.com/bucket/klanten/...
func ParseLocator(raw string) (StorageLocator, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return StorageLocator{}, NewInvalidLocatorError("parse locator", "locator is empty")
	}

	for _, scheme := range []string{SchemeRemote, SchemeLegacyRemote} {
		if rest, ok := strings.CutPrefix(raw, scheme); ok {
			rel, err := CleanRelativePath(rest)
			if err != nil {
				return StorageLocator{}, err
			}
			return NewRemoteLocator(rel, "", 0), nil
		}
	}

	if strings.HasPrefix(raw, SchemeObject) || strings.HasPrefix(raw, "https://") || strings.HasPrefix(raw, "http://") {
		bucket, key, err := ParseObjectURI(raw)
		if err != nil {
			return StorageLocator{}, err
		}
		return NewObjectLocator(bucket, key, key, raw, 0), nil
	}

	return StorageLocator{}, NewInvalidLocatorError("parse locator", "unrecognized locator scheme: "+raw)
}

// ParseObjectURI extracts bucket and key from an object-store URI.
// Supported forms are s3://bucket/key, virtual-hosted
// https://bucket.s3[.-]region.amazonaws.com/key, and path-style
// https://host/bucket/key for any other host.
func ParseObjectURI(raw string) (bucket, key string, err error) {
	const op = "parse object uri"

	if rest, ok := strings.CutPrefix(raw, SchemeObject); ok {
		bucket, key, _ = strings.Cut(rest, "/")
	} else {
		u, perr := url.Parse(raw)
		if perr != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return "", "", NewInvalidLocatorError(op, "invalid object store URL: "+raw)
		}
		host := u.Hostname()
		p := strings.TrimPrefix(u.EscapedPath(), "/")
		if b, ok := virtualHostedBucket(host); ok {
			bucket, key = b, p
		} else {
			bucket, key, _ = strings.Cut(p, "/")
		}
	}

	if !bucketNamePattern.MatchString(bucket) {
		return "", "", NewInvalidLocatorError(op, "invalid bucket name: "+bucket)
	}
	if key == "" {
		return bucket, "", nil
	}
	key, err = url.PathUnescape(key)
	if err != nil {
		return "", "", NewInvalidLocatorError(op, "invalid object key encoding")
	}
	return bucket, key, nil
}

// virtualHostedBucket returns the bucket for hosts of the form
// bucket.s3.amazonaws.com, bucket.s3.region.amazonaws.com and
// bucket.s3-region.amazonaws.com.
func virtualHostedBucket(host string) (string, bool) {
	if !strings.HasSuffix(host, ".amazonaws.com") {
		return "", false
	}
	// the last match, since dotted bucket names may contain ".s3."
	idx := max(strings.LastIndex(host, ".s3."), strings.LastIndex(host, ".s3-"))
	if idx <= 0 {
		return "", false
	}
	return host[:idx], true
}

// CleanRelativePath normalizes a backend-relative path: separators are
// unified, leading separators stripped, and parent segments rejected.
func CleanRelativePath(p string) (string, error) {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", NewError(ErrKindInvalidInput, "clean path", "path must not contain '..': "+p, nil)
		}
	}
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "", NewError(ErrKindInvalidInput, "clean path", "path is empty", nil)
	}
	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") {
		cleaned += "/"
	}
	return cleaned, nil
}
