package domain

import "regexp"

var profanityFilters = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)\bf+u+c*k+\b`), "duck"},
	{regexp.MustCompile(`(?i)\bwtf\b`), "what the duck"},
	{regexp.MustCompile(`(?i)\bfk\b`), "duck"},
	{regexp.MustCompile(`(?i)\btf\b`), "the duck"},
}

// SanitizeContent mask profanity, applied in order, whole words only
func SanitizeContent(content string) string {
	for _, f := range profanityFilters {
		content = f.re.ReplaceAllLiteralString(content, f.repl)
	}
	return content
}
