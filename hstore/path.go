package hstore

import (
	"fmt"
	"strings"
)

// ParseAttrPath splits an attribute path into the owning object's path and
// the attribute name. The format is /group/object@attribute:
//
//   - "/@title" -> "/", "title"
//   - "/data@units" -> "/data", "units"
//   - "/sensors/temp@calibration" -> "/sensors/temp", "calibration"
func ParseAttrPath(path string) (objectPath, attrName string, err error) {
	if path == "" {
		return "", "", fmt.Errorf("empty attribute path")
	}
	at := strings.LastIndex(path, "@")
	if at == -1 {
		return "", "", fmt.Errorf("attribute path %q has no '@' separator", path)
	}
	objectPath, attrName = path[:at], path[at+1:]
	if attrName == "" {
		return "", "", fmt.Errorf("attribute path %q has an empty name", path)
	}
	return CleanPath(objectPath), attrName, nil
}

// JoinAttrPath is the inverse of ParseAttrPath.
func JoinAttrPath(objectPath, attrName string) string {
	if objectPath == "/" {
		return "/@" + attrName
	}
	return objectPath + "@" + attrName
}

// SplitPath returns the non-empty components of a path.
//
//   - "/" -> []
//   - "/foo//bar/" -> ["foo", "bar"]
func SplitPath(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s != "" && s != "." {
			out = append(out, s)
		}
	}
	return out
}

// CleanPath normalizes a path to start with "/" and have no trailing slash
// or empty components.
func CleanPath(path string) string {
	return "/" + strings.Join(SplitPath(path), "/")
}

// joinPath appends name to a cleaned parent path.
func joinPath(parent, name string) string {
	if parent == "/" || parent == "" {
		return "/" + name
	}
	return parent + "/" + name
}

// splitDir separates the last component of path from the rest.
func splitDir(path string) (dir []string, base string) {
	parts := SplitPath(path)
	if len(parts) == 0 {
		return nil, ""
	}
	return parts[:len(parts)-1], parts[len(parts)-1]
}
