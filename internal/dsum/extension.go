package dsum

import (
	"regexp"
	"strings"
)

var (
	compressedExtRe = regexp.MustCompile(`(?i)^[^.]+\.([^.]+\.(bdes3|gpg|GZ|BZ|BZ2|Z|ZIP|XZ|LZMA|7Z|LZO|LZ))$`)
	plainExtRe      = regexp.MustCompile(`^[^.]+\.([^.]+)$`)
	splitSuffixRe   = regexp.MustCompile(`--SS-.*$`)
)

// NormalizeExtension returns the upper-cased extension of name. A trailing
// compression suffix is kept with the extension before it ("TAR.GZ").
// Names with more than one dot and no compression suffix have none.
func NormalizeExtension(name string) string {
	m := compressedExtRe.FindStringSubmatch(name)
	if m == nil {
		m = plainExtRe.FindStringSubmatch(name)
	}
	if m == nil {
		return ""
	}
	ext := splitSuffixRe.ReplaceAllString(m[1], "")
	return strings.ToUpper(ext)
}
