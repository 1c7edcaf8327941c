package classify

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Localized "-edited" style suffixes Google appends to derivative
// images, lowercase. One line per locale.
var extraSuffixes = []string{
	"-edited",     // EN
	"-effects",    // EN
	"-smile",      // EN
	"-mix",        // EN
	"-edytowane",  // PL
	"-bearbeitet", // DE
	"-bewerkt",    // NL
	"-編集済み",       // JA
	"-modificato", // IT
	"-modifié",    // FR
	"-ha editado", // ES
	"-editat",     // CA
}

// IsExtra reports whether a filename stem (no extension) names a
// Google-generated derivative such as "IMG_0001-edited".
func IsExtra(stem string) bool {
	name := strings.ToLower(norm.NFC.String(stem))
	for _, suffix := range extraSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// StripExtra removes the last derivative suffix from a filename if one
// is present. Matching is case-insensitive; the rest of the name keeps
// its original case. Used when matching media names against sidecars.
func StripExtra(name string) string {
	normalized := norm.NFC.String(name)
	lower := strings.ToLower(normalized)
	for _, suffix := range extraSuffixes {
		if pos := strings.LastIndex(lower, suffix); pos >= 0 {
			return normalized[:pos] + normalized[pos+len(suffix):]
		}
	}
	return normalized
}
