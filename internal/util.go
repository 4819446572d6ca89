package internal

import (
	"fmt"
	"strings"
)

// TopLevelDir returns the first path component of a slash-separated entry
// path, or "" for a root-level file. Separators are normalized so Windows
// style manifests behave the same.
func TopLevelDir(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimLeft(p, "/")
	if i := strings.Index(p, "/"); i != -1 {
		return p[:i]
	}
	return ""
}

// FormatBytesSI formats the provided quantity with SI prefixes.
func FormatBytesSI(b int64) string {
	var neg string
	if b < 0 {
		neg = "-"
		b *= -1
	}
	const unit = 1000
	if b < unit {
		return fmt.Sprintf("%s%d B", neg, b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%s%.1f %cB", neg, float64(b)/float64(div), "kMGTPE"[exp])
}
