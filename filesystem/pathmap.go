package filesystem

import "strings"

// DataRoot is the fixed top-level directory every connector lives under when
// addressed through the data API ("data://" URIs).
const DataRoot = "data"

const uriSep = "://"

// PathToURI maps a local path to its remote URI. The first segment is the
// connector scheme and the rest is its key:
//
//	"s3/bucket/key.txt" -> "s3://bucket/key.txt"
//	"dropbox"           -> "dropbox://"
func PathToURI(path string) string {
	path = strings.TrimPrefix(path, "/")
	scheme, rest, _ := strings.Cut(path, "/")
	return scheme + uriSep + rest
}

// URIToPath is the inverse of PathToURI. A URI with an empty scheme resolves to
// the data root. Input without a scheme separator is taken as a path relative to
// the data root.
func URIToPath(uri string) string {
	scheme, rest, found := strings.Cut(uri, uriSep)
	if !found {
		if uri == "" {
			return DataRoot
		}
		return DataRoot + "/" + uri
	}
	switch {
	case scheme == "":
		return DataRoot
	case rest == "":
		return scheme
	default:
		return scheme + "/" + rest
	}
}

// Basename returns the last segment of path
func Basename(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// splitPath breaks path into its non-empty segments. The root ("") has none.
func splitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
}

// joinPath appends name to the directory path dir
func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
