package ocr

import "strings"

// snippet returns a shortened version of text for logging.
func snippet(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ", "\f", " ")

// flattenText replaces line structure with spaces and trims the result.
// Interior runs of spaces are kept so attempt lengths stay comparable.
func flattenText(t string) string {
	return strings.TrimSpace(lineBreaks.Replace(t))
}
