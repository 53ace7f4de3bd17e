package refile

// TrustPolicy decides which remote URLs may be treated as authoritative origins.
type TrustPolicy interface {
	IsTrustedURL(rawURL string) bool
}

// MimePolicy resolves and gates content types.
type MimePolicy interface {
	// Detect returns declared unless it is empty or generic, in which case the
	// type is sniffed from the file at path.
	Detect(path, declared string) (string, error)

	// Allowed reports whether uploads of the given type are accepted.
	Allowed(mime string) bool
}
