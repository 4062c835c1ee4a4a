package source

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	digitsPattern  = regexp.MustCompile(`^\d+$`)
	galleryPattern = regexp.MustCompile(`(\d+)\.html$`)
)

// ExtractID accepts either a bare numeric identifier or a gallery page URL
// ending in <digits>.html and returns the identifier.
func ExtractID(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", fmt.Errorf("empty source identifier")
	}
	if digitsPattern.MatchString(trimmed) {
		return trimmed, nil
	}
	if m := galleryPattern.FindStringSubmatch(trimmed); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("unrecognized source identifier %q", input)
}
