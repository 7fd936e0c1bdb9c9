package metadata

import (
	"regexp"
	"strings"
)

var (
	reEntity     = regexp.MustCompile(`^&[A-Za-z0-9#]*;?$|^#?[0-9]+;$|^(?i:amp|lt|gt|quot|apos|nbsp);$`)
	reSlashes    = regexp.MustCompile(`^/+$`)
	reTag        = regexp.MustCompile(`^</?[A-Za-z][\w:-]*/?>?$|^/?[A-Za-z][\w:-]*/?>$|^/[A-Za-z][\w:-]*$`)
	reNamespaced = regexp.MustCompile(`^(?i:mstts:[\w-]+|xml:lang|xmlns(?::[\w-]+)?)$`)
)

// IsProtocolArtifact reports whether a boundary word is a leftover of the
// request markup rather than spoken text. Only forms carrying markup syntax
// count: tag brackets or slashes, entity fragments and namespaced names. It
// never affects parsing; callers decide whether to drop them.
func IsProtocolArtifact(word string) bool {
	w := strings.TrimSpace(word)
	if w == "" {
		return false
	}
	return reSlashes.MatchString(w) || reTag.MatchString(w) || reEntity.MatchString(w) || reNamespaced.MatchString(w)
}
