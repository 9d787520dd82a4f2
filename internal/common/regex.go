package common

import "regexp"

// CompileFold compiles pattern as a case-insensitive expression.
func CompileFold(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}
