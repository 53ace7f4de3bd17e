package pointer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
)

var hashPattern = regexp.MustCompile(`^sha256:[a-f0-9]{64}$`)

// rawPointer mirrors Pointer with every required field as a pointer so that
// missing keys can be told apart from zero values.
type rawPointer struct {
	V         *int            `json:"v"`
	Type      *string         `json:"type"`
	Mime      *string         `json:"mime"`
	URL       *string         `json:"url"`
	Hash      *string         `json:"hash"`
	Size      *int64          `json:"size"`
	Name      *string         `json:"name"`
	CreatedAt *int64          `json:"createdAt"`
	Backend   *string         `json:"backend"`
	Meta      json.RawMessage `json:"meta"`
}

// rawHints accepts any JSON number for the hint fields. Other writers record
// times with sub-millisecond fractions and the full st_mode.
type rawHints struct {
	Mode  *float64 `json:"mode"`
	Mtime *float64 `json:"mtime"`
	Atime *float64 `json:"atime"`
}

// UnmarshalJSON decodes hints leniently: times are truncated to whole
// milliseconds and the mode keeps only its permission bits. Values that do not
// fit are dropped.
func (h *FileHints) UnmarshalJSON(data []byte) error {
	var raw rawHints
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*h = FileHints{
		Mtime: truncMillis(raw.Mtime),
		Atime: truncMillis(raw.Atime),
	}
	if raw.Mode != nil && *raw.Mode >= 0 && *raw.Mode <= math.MaxUint32 {
		mode := uint32(*raw.Mode) & uint32(fs.ModePerm)
		h.Mode = &mode
	}
	return nil
}

func truncMillis(v *float64) *int64 {
	if v == nil || *v >= math.MaxInt64 || *v <= math.MinInt64 {
		return nil
	}
	ms := int64(*v)
	return &ms
}

// Encode serializes p as indented JSON with a stable key order.
func Encode(p *Pointer) ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding pointer: %w", err)
	}
	return append(data, '\n'), nil
}

// Write serializes p and persists it at path using an atomic temp file + rename.
func Write(path string, p *Pointer) error {
	data, err := Encode(p)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".pointer-*")
	if err != nil {
		return fmt.Errorf("creating temp pointer file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing pointer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing pointer: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("setting pointer permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming pointer into place: %w", err)
	}

	success = true
	return nil
}

// Read loads and validates the pointer at path.
// Any read, parse or validation failure yields (nil, false); pointer files are
// treated as untrusted input and never cause an error for the caller.
func Read(path string) (*Pointer, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	p, err := Decode(f)
	if err != nil {
		return nil, false
	}
	return p, true
}

// Decode parses and validates a pointer document.
// Unlike Read it reports why a document was rejected.
func Decode(r io.Reader) (*Pointer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading pointer: %w", err)
	}

	var raw rawPointer
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing pointer: %w", err)
	}

	p, err := raw.toPointer()
	if err != nil {
		return nil, err
	}
	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *rawPointer) toPointer() (*Pointer, error) {
	switch {
	case r.V == nil:
		return nil, missing("v")
	case r.Type == nil:
		return nil, missing("type")
	case r.Mime == nil:
		return nil, missing("mime")
	case r.URL == nil:
		return nil, missing("url")
	case r.Hash == nil:
		return nil, missing("hash")
	case r.Size == nil:
		return nil, missing("size")
	case r.Name == nil:
		return nil, missing("name")
	case r.CreatedAt == nil:
		return nil, missing("createdAt")
	}

	p := &Pointer{
		V:         *r.V,
		Type:      *r.Type,
		Mime:      *r.Mime,
		URL:       *r.URL,
		Hash:      *r.Hash,
		Size:      *r.Size,
		Name:      *r.Name,
		CreatedAt: *r.CreatedAt,
	}
	if r.Backend != nil {
		p.Backend = *r.Backend
	}

	if len(r.Meta) > 0 && !bytes.Equal(r.Meta, []byte("null")) {
		var hints FileHints
		if err := json.Unmarshal(r.Meta, &hints); err != nil {
			return nil, fmt.Errorf("parsing pointer meta: %w", err)
		}
		p.Meta = &hints
	}
	return p, nil
}

// Validate checks a pointer against the format rules.
func Validate(p *Pointer) error {
	if p.V != Version {
		return fmt.Errorf("unsupported pointer version %d", p.V)
	}
	if p.Type != Type {
		return fmt.Errorf("unexpected pointer type %q", p.Type)
	}
	if !hashPattern.MatchString(p.Hash) {
		return fmt.Errorf("malformed pointer hash %q", p.Hash)
	}
	if p.Size < 0 {
		return fmt.Errorf("negative pointer size %d", p.Size)
	}
	u, err := url.Parse(p.URL)
	if err != nil {
		return fmt.Errorf("malformed pointer url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return errors.New("pointer url must be absolute")
	}
	return nil
}

func missing(field string) error {
	return fmt.Errorf("pointer is missing required field %q", field)
}
