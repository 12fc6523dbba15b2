package runner

import (
	"regexp"
	"strings"
)

var (
	protocolRegex       = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)
	invalidFilenameRune = regexp.MustCompile(`[<>:"/\\|?*=&#]`)
	multipleUnderscores = regexp.MustCompile(`_+`)
	placeholderRegex    = regexp.MustCompile(`\{\{\s*([a-zA-Z_]+)\s*\}\}`)

	fileExtensions = []string{".txt", ".json", ".jsonl", ".xml", ".csv", ".log", ".out", ".html"}
)

// RenderArgs substitutes {{name}} placeholders in args. A value that lands
// in something shaped like a file path is sanitized into a safe filename
// component; everywhere else it is inserted verbatim. Unknown placeholders
// are left untouched.
func RenderArgs(args []string, values map[string]string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		fileLike := isLikelyFilePath(arg)
		out[i] = placeholderRegex.ReplaceAllStringFunc(arg, func(m string) string {
			key := placeholderRegex.FindStringSubmatch(m)[1]
			v, ok := values[key]
			if !ok {
				return m
			}
			if fileLike {
				return SanitizeForFilename(v)
			}
			return v
		})
	}
	return out
}

// isLikelyFilePath determines if an argument carrying a placeholder is a
// file path rather than a URL or a plain value.
func isLikelyFilePath(arg string) bool {
	if !placeholderRegex.MatchString(arg) {
		return false
	}

	rest := strings.ToLower(placeholderRegex.ReplaceAllString(arg, ""))
	if strings.Contains(rest, "://") || rest == "" {
		return false
	}

	for _, ext := range fileExtensions {
		if strings.HasSuffix(rest, ext) {
			return true
		}
	}

	return strings.HasPrefix(rest, "/") && !strings.Contains(rest, "fuzz")
}

// SanitizeForFilename converts a value (like a URL) into a safe filename component
func SanitizeForFilename(value string) string {
	sanitized := protocolRegex.ReplaceAllString(value, "")
	sanitized = invalidFilenameRune.ReplaceAllString(sanitized, "_")
	sanitized = multipleUnderscores.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_.")

	if sanitized == "" {
		sanitized = "sanitized_value"
	}

	const maxLength = 100
	if len(sanitized) > maxLength {
		sanitized = strings.TrimRight(sanitized[:maxLength], "_.")
	}

	return sanitized
}
