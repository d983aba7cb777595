package document

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// BuildPath returns the persisted layout {scope}/{year}/{folder}/{filename}.pdf.
// Scope may contain several segments (e.g. "klanten/acme"); every segment is
// folded to ASCII so it is accepted by both backends.
func BuildPath(scope string, year int, kind Kind, filename string) (string, error) {
	if year < 1970 || year > 9999 {
		return "", NewError(ErrKindInvalidInput, "build path", "year out of range: "+strconv.Itoa(year), nil)
	}
	if !kind.IsValid() {
		return "", NewError(ErrKindInvalidInput, "build path", "unknown document kind: "+string(kind), nil)
	}

	var segments []string
	for _, seg := range strings.Split(strings.ReplaceAll(scope, "\\", "/"), "/") {
		if s := SanitizeSegment(seg); s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) == 0 {
		return "", NewError(ErrKindInvalidInput, "build path", "scope is empty", nil)
	}

	name := SanitizeSegment(strings.TrimSuffix(filename, ".pdf"))
	if name == "" {
		return "", NewError(ErrKindInvalidInput, "build path", "filename is empty", nil)
	}

	segments = append(segments, strconv.Itoa(year), kind.Folder(), name+".pdf")
	return strings.Join(segments, "/"), nil
}

// SanitizeSegment strips diacritics, replaces characters outside
// [A-Za-z0-9._-] with '-', and trims separators from both ends.
// Segments consisting only of dots are dropped.
func SanitizeSegment(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		folded = s
	}

	var b strings.Builder
	lastDash := false
	for _, r := range folded {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '.', r == '_':
			b.WriteRune(r)
			lastDash = false
		case r == '-' || unicode.IsSpace(r) || r > unicode.MaxASCII || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if strings.Trim(out, ".") == "" {
		return ""
	}
	return out
}
