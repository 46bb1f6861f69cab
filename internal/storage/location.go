package storage

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Supported location schemes.
const (
	SchemeS3   = "s3"
	SchemeFile = "file"
)

// Location is a parsed storage URI such as s3://bucket/warehouse or
// file:///var/lib/streamhouse/lake.
type Location struct {
	Scheme string
	Bucket string
	// Path is the slash-separated path without leading or trailing slash.
	Path string
}

// ParseLocation parses and normalises a storage URI.
func ParseLocation(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("storage: parse location %q: %w", raw, err)
	}
	switch u.Scheme {
	case SchemeS3:
		if u.Host == "" {
			return Location{}, fmt.Errorf("storage: location %q has no bucket", raw)
		}
	case SchemeFile:
		if u.Host != "" {
			return Location{}, fmt.Errorf("storage: file location %q must be absolute (file:///path)", raw)
		}
		if strings.Trim(u.Path, "/") == "" {
			return Location{}, fmt.Errorf("storage: file location %q has no path", raw)
		}
	default:
		return Location{}, fmt.Errorf("storage: unsupported scheme %q in %q (must be s3 or file)", u.Scheme, raw)
	}
	if strings.ContainsAny(u.Path, "'") {
		return Location{}, fmt.Errorf("storage: location %q contains a quote", raw)
	}
	return Location{
		Scheme: u.Scheme,
		Bucket: u.Host,
		Path:   strings.Trim(path.Clean("/"+u.Path), "/"),
	}, nil
}

// String renders the location as a URI without trailing slash.
func (l Location) String() string {
	switch l.Scheme {
	case SchemeFile:
		return "file:///" + l.Path
	default:
		if l.Path == "" {
			return fmt.Sprintf("%s://%s", l.Scheme, l.Bucket)
		}
		return fmt.Sprintf("%s://%s/%s", l.Scheme, l.Bucket, l.Path)
	}
}

// Join returns a child location.
func (l Location) Join(elem ...string) Location {
	parts := append([]string{l.Path}, elem...)
	l.Path = strings.Trim(path.Join(parts...), "/")
	return l
}

// Key returns the object path prefix of this location relative to the backend
// root. S3 backends are rooted at the bucket; local backends are opened at
// the root directory itself, so rootPath is stripped.
func (l Location) Key(root Location) string {
	if l.Scheme == SchemeFile {
		return strings.Trim(strings.TrimPrefix(l.Path, root.Path), "/")
	}
	return l.Path
}

// Contains reports whether other is l or lies beneath it, comparing whole
// path segments so that s3://b/clicks does not contain s3://b/clicks2.
func (l Location) Contains(other Location) bool {
	if l.Scheme != other.Scheme || l.Bucket != other.Bucket {
		return false
	}
	if l.Path == "" || l.Path == other.Path {
		return true
	}
	return strings.HasPrefix(other.Path+"/", l.Path+"/")
}

// Overlaps reports whether either location contains the other.
func (l Location) Overlaps(other Location) bool {
	return l.Contains(other) || other.Contains(l)
}

// Resolver derives deterministic per-table locations under a storage root.
type Resolver struct {
	root Location
}

// NewResolver creates a resolver for the given root URI.
func NewResolver(rootURI string) (*Resolver, error) {
	root, err := ParseLocation(rootURI)
	if err != nil {
		return nil, err
	}
	return &Resolver{root: root}, nil
}

// Root returns the storage root.
func (r *Resolver) Root() Location {
	return r.root
}

// LocationOf returns <root>/<table>.
func (r *Resolver) LocationOf(table string) Location {
	return r.root.Join(table)
}

// KeyOf returns the object path prefix of a table relative to the backend,
// with a trailing slash.
func (r *Resolver) KeyOf(table string) string {
	key := r.LocationOf(table).Key(r.root)
	if key == "" {
		return ""
	}
	return key + "/"
}
