package gopher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// TargetKind tells the handler how a resolved target is served.
type TargetKind int

const (
	// TargetFile is a regular file streamed verbatim.
	TargetFile TargetKind = iota

	// TargetMenu is a directory rendered from its gophermap.
	TargetMenu
)

func (k TargetKind) String() string {
	switch k {
	case TargetFile:
		return "file"
	case TargetMenu:
		return "menu"
	default:
		return "unknown"
	}
}

// Target is a selector that passed every access check.
type Target struct {
	// Path is the canonical filesystem path of the file or directory.
	Path string

	Kind TargetKind

	// Gophermap is the gophermap path for TargetMenu, empty otherwise.
	Gophermap string

	// GophermapInfo is the lstat result of Gophermap, used to validate cached menus.
	GophermapInfo fs.FileInfo
}

// Resolver maps selectors onto the document root and enforces the
// public-access policy.
type Resolver struct {
	root   string
	chroot bool
}

// NewResolver creates a Resolver for the given document root.
//
// The root is made absolute and symlink-free once, so every ancestry check
// compares canonical paths. In chroot mode root is the narrowed OS root,
// normally "/".
func NewResolver(root string, chroot bool) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve document root %s: %w", root, err)
	}

	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve document root %s: %w", root, err)
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("stat document root %s: %w", canonical, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("document root %s is not a directory", canonical)
	}

	return &Resolver{root: canonical, chroot: chroot}, nil
}

// Root returns the canonical document root.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve maps req to a servable Target.
//
// Errors wrap ErrOutOfBounds or ErrNonPublic.
func (r *Resolver) Resolve(req Request) (Target, error) {
	var candidate string

	if r.chroot {
		if strings.Contains(req.Raw, "..") {
			return Target{}, fmt.Errorf("%w: parent reference in chroot", ErrOutOfBounds)
		}
		candidate = filepath.Join(r.root, filepath.FromSlash(req.Path))
	} else {
		candidate = filepath.Join(r.root, filepath.FromSlash(strings.TrimPrefix(req.Path, "/")))
	}

	canonical := canonicalize(candidate)

	if !r.chroot && !within(r.root, canonical) {
		return Target{}, fmt.Errorf("%w: %s escapes document root", ErrOutOfBounds, canonical)
	}

	return r.validate(candidate, canonical)
}

// validate applies the shared visibility rules, in order.
func (r *Resolver) validate(candidate, canonical string) (Target, error) {
	info, err := os.Lstat(canonical)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %s does not exist", ErrNonPublic, canonical)
	}

	if isSymlink(info) || isSymlinkPath(candidate) {
		return Target{}, fmt.Errorf("%w: %s is a symbolic link", ErrNonPublic, candidate)
	}

	if !worldReadable(info) {
		return Target{}, fmt.Errorf("%w: %s is not world-readable", ErrNonPublic, canonical)
	}

	switch {
	case info.Mode().IsRegular():
		return Target{Path: canonical, Kind: TargetFile}, nil

	case info.IsDir():
		gophermap := filepath.Join(canonical, GophermapFile)
		mapInfo, err := os.Lstat(gophermap)
		if err != nil {
			return Target{}, fmt.Errorf("%w: %s has no gophermap", ErrNonPublic, canonical)
		}
		if !mapInfo.Mode().IsRegular() || !worldReadable(mapInfo) {
			return Target{}, fmt.Errorf("%w: %s is not a public regular file", ErrNonPublic, gophermap)
		}
		return Target{
			Path:          canonical,
			Kind:          TargetMenu,
			Gophermap:     gophermap,
			GophermapInfo: mapInfo,
		}, nil

	default:
		return Target{}, fmt.Errorf("%w: %s is a special file", ErrNonPublic, canonical)
	}
}

// canonicalize returns p with every symlink evaluated. Paths that cannot be
// evaluated (missing, dangling links) come back lexically cleaned, existence is
// checked afterwards.
func canonicalize(p string) string {
	cleaned := filepath.Clean(p)
	real, err := filepath.EvalSymlinks(cleaned)
	if err != nil {
		return cleaned
	}
	return real
}

// within reports whether p is root or one of its descendants.
func within(root, p string) bool {
	if p == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}

func isSymlink(info fs.FileInfo) bool {
	return info.Mode()&fs.ModeSymlink != 0
}

func isSymlinkPath(p string) bool {
	info, err := os.Lstat(p)
	return err == nil && isSymlink(info)
}

func worldReadable(info fs.FileInfo) bool {
	return info.Mode().Perm()&0o004 != 0
}
