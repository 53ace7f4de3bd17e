package policy

import (
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"refile-go/internal/refile"
)

// PrefixMimePolicy accepts mime types that start with one of its prefixes.
// An empty prefix list accepts everything.
type PrefixMimePolicy struct {
	prefixes []string
}

func NewPrefixMimePolicy(prefixes []string) *PrefixMimePolicy {
	var clean []string
	for _, p := range prefixes {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			clean = append(clean, p)
		}
	}
	return &PrefixMimePolicy{prefixes: clean}
}

// Detect keeps a specific declared type and sniffs the file otherwise.
// Parameters such as charset are dropped from the result.
func (p *PrefixMimePolicy) Detect(path, declared string) (string, error) {
	if base := baseType(declared); base != "" && base != refile.DefaultContentType {
		return base, nil
	}

	m, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("sniffing %s: %w", path, err)
	}
	return baseType(m.String()), nil
}

func (p *PrefixMimePolicy) Allowed(mimeType string) bool {
	if len(p.prefixes) == 0 {
		return true
	}
	mimeType = strings.ToLower(mimeType)
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(mimeType, prefix) {
			return true
		}
	}
	return false
}

// baseType strips parameters and normalizes case. Unparsable input yields "".
func baseType(v string) string {
	if strings.TrimSpace(v) == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return ""
	}
	return mt
}

var _ refile.MimePolicy = (*PrefixMimePolicy)(nil)
