// Package pathspec maps user supplied workspace paths, possibly containing
// wildcards, to a local file pattern under <home>/src and the matching
// remote key pattern.
package pathspec

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// sentinel stands in for '*' while paths go through filepath helpers. It is
// a private-use rune that never appears in real file names.
const sentinel = "\uE000"

const dirSuffix = "/**"

type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid path %q: %s", e.Path, e.Reason)
}

type PathSpec struct {
	OriginalPath  string
	Cwd           string
	Home          string
	LocalPattern  string
	RemotePattern string
}

// IsPattern reports whether the original input carried a wildcard.
func (s PathSpec) IsPattern() bool {
	return strings.Contains(s.OriginalPath, "*")
}

// IsDir reports whether the spec selects a whole directory tree.
func (s PathSpec) IsDir() bool {
	return strings.HasSuffix(s.LocalPattern, dirSuffix)
}

// LocalBase is the directory prefix of LocalPattern before the first
// wildcard, in OS form.
func (s PathSpec) LocalBase() string {
	p := s.LocalPattern
	if i := strings.Index(p, "*"); i >= 0 {
		p = p[:i]
		if j := strings.LastIndex(p, "/"); j >= 0 {
			p = p[:j]
		}
	}
	return filepath.FromSlash(strings.TrimSuffix(p, "/"))
}

// LocalGlob is LocalPattern as a doublestar pattern: '*' stays a wildcard,
// every other glob character matches itself.
func (s PathSpec) LocalGlob() string {
	return quote(s.LocalPattern, literalMeta)
}

// RemoteGlob is RemotePattern quoted like LocalGlob, for remote List filters.
func (s PathSpec) RemoteGlob() string {
	return quote(s.RemotePattern, literalMeta)
}

// literalMeta are the doublestar metacharacters that only '*' input may
// produce a wildcard for.
const literalMeta = `?[]{}\`

// QuoteMeta escapes every doublestar metacharacter in p, '*' included.
func QuoteMeta(p string) string {
	return quote(p, "*"+literalMeta)
}

func quote(p, meta string) string {
	if !strings.ContainsAny(p, meta) {
		return p
	}

	var b strings.Builder
	for _, r := range p {
		if strings.ContainsRune(meta, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func Encode(p string) string {
	return strings.ReplaceAll(p, "*", sentinel)
}

func Decode(p string) string {
	return strings.ReplaceAll(p, sentinel, "*")
}

type Resolver struct {
	fs            afero.Fs
	withExtension bool
}

// NewResolver returns a resolver that stats candidate directories through fs.
// With withExtension the remote pattern keeps file extensions.
func NewResolver(fs afero.Fs, withExtension bool) *Resolver {
	return &Resolver{fs: fs, withExtension: withExtension}
}

func (r *Resolver) Resolve(p, cwd, home string) (PathSpec, error) {
	home = filepath.Clean(home)
	cwd = filepath.Clean(cwd)
	srcRoot := filepath.Join(home, "src")

	if cwd != home && !within(srcRoot, cwd) {
		return PathSpec{}, &InvalidPathError{
			Path:   cwd,
			Reason: fmt.Sprintf("working directory must be %s or inside %s", home, srcRoot),
		}
	}

	encoded := Encode(filepath.FromSlash(p))
	dirHint := strings.HasSuffix(p, "/") || strings.HasSuffix(p, string(os.PathSeparator))

	var abs string
	if filepath.IsAbs(encoded) {
		abs = filepath.Clean(encoded)
	} else {
		rel := encoded
		if cwd == home && firstSegment(rel) != "src" {
			rel = filepath.Join("src", rel)
		}
		abs = filepath.Join(cwd, rel)
	}

	if !within(srcRoot, abs) {
		return PathSpec{}, &InvalidPathError{
			Path:   p,
			Reason: fmt.Sprintf("resolves outside %s", srcRoot),
		}
	}

	local := filepath.ToSlash(abs)
	switch {
	case dirHint || abs == srcRoot:
		local += dirSuffix
	case strings.Contains(abs, sentinel):
	default:
		if info, err := r.fs.Stat(abs); err == nil && info.IsDir() {
			local += dirSuffix
		}
	}

	remote := strings.TrimPrefix(strings.TrimPrefix(local, filepath.ToSlash(srcRoot)), "/")
	if !r.withExtension && !strings.HasSuffix(remote, "**") {
		remote = stripExt(remote)
	}

	return PathSpec{
		OriginalPath:  p,
		Cwd:           cwd,
		Home:          home,
		LocalPattern:  Decode(local),
		RemotePattern: Decode(remote),
	}, nil
}

// RemoteKey derives the remote key of a concrete file under home/src.
func RemoteKey(home, localFile string, withExt bool) (string, error) {
	srcRoot := filepath.Join(filepath.Clean(home), "src")
	localFile = filepath.Clean(localFile)

	if !within(srcRoot, localFile) || localFile == srcRoot {
		return "", &InvalidPathError{
			Path:   localFile,
			Reason: fmt.Sprintf("not a file under %s", srcRoot),
		}
	}

	rel, err := filepath.Rel(srcRoot, localFile)
	if err != nil {
		return "", &InvalidPathError{Path: localFile, Reason: err.Error()}
	}

	return KeyOf(rel, withExt), nil
}

// KeyOf turns a relative file path into a remote key, dropping the extension
// of the last segment unless withExt is set.
func KeyOf(rel string, withExt bool) string {
	key := filepath.ToSlash(rel)
	if !withExt {
		key = stripExt(key)
	}
	return key
}

// LocalPath is the file a remote key maps to, without any extension.
func LocalPath(home, key string) string {
	return filepath.Join(home, "src", filepath.FromSlash(key))
}

// stripExt drops the extension of the last slash separated segment. Dotfile
// names are kept as they are.
func stripExt(p string) string {
	dir, base := path.Split(p)
	ext := path.Ext(base)
	if ext == "" || ext == base {
		return p
	}
	return dir + strings.TrimSuffix(base, ext)
}

func within(root, p string) bool {
	return p == root || strings.HasPrefix(p, root+string(os.PathSeparator))
}

func firstSegment(p string) string {
	p = filepath.ToSlash(p)
	if i := strings.Index(p, "/"); i >= 0 {
		return p[:i]
	}
	return p
}
