package refile_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"refile-go/internal/refile"
)

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestDigest(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"abc", "abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := refile.Digest(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("Digest() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Digest() = %s, want %s", got, tt.want)
			}
			if again := refile.DigestBytes([]byte(tt.input)); again != got {
				t.Errorf("DigestBytes() = %s, want %s", again, got)
			}
		})
	}
}

func TestDigest_ReadError(t *testing.T) {
	boom := errors.New("disk on fire")
	r := io.MultiReader(strings.NewReader("partial"), failingReader{boom})

	got, err := refile.Digest(r)
	if !errors.Is(err, boom) {
		t.Fatalf("Digest() error = %v, want %v", err, boom)
	}
	if got != "" {
		t.Errorf("Digest() = %q, want no partial digest", got)
	}
}

func TestShortIDAndHash(t *testing.T) {
	d := refile.DigestBytes([]byte("abc"))

	if got := refile.ShortID(d); got != "ba7816bf8f01" {
		t.Errorf("ShortID() = %s", got)
	}
	if !refile.IsShortID(refile.ShortID(d)) {
		t.Error("IsShortID() rejected a short id")
	}

	hash := refile.FormatHash(d)
	if hash != "sha256:"+d {
		t.Errorf("FormatHash() = %s", hash)
	}
	parsed, err := refile.ParseHash(hash)
	if err != nil || parsed != d {
		t.Errorf("ParseHash() = %s, %v", parsed, err)
	}

	for _, bad := range []string{d, "sha256:" + strings.ToUpper(d), "sha256:" + d[:63], "md5:" + d} {
		if _, err := refile.ParseHash(bad); !errors.Is(err, refile.ErrInvalidInput) {
			t.Errorf("ParseHash(%q) error = %v, want ErrInvalidInput", bad, err)
		}
	}
}

func TestValidators(t *testing.T) {
	d := refile.DigestBytes(nil)
	tests := []struct {
		in      string
		digest  bool
		shortID bool
	}{
		{d, true, false},
		{d[:12], false, true},
		{strings.ToUpper(d[:12]), false, false},
		{"g00000000000", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		if got := refile.IsDigest(tt.in); got != tt.digest {
			t.Errorf("IsDigest(%q) = %v", tt.in, got)
		}
		if got := refile.IsShortID(tt.in); got != tt.shortID {
			t.Errorf("IsShortID(%q) = %v", tt.in, got)
		}
	}
}
