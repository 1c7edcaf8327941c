// Package classify recognizes the localized folder and filename
// conventions of Google Takeout exports.
package classify

import (
	"regexp"
	"strings"
)

// Localized year-folder prefixes: "<prefix>YYYY". One line per locale.
var yearFolderPrefixes = []string{
	"Photos from ",    // EN
	"Fotos von ",      // DE
	"Fotos aus ",      // DE (alternate)
	"Photos de ",      // FR
	"Fotos de ",       // ES, PT, CA
	"Foto's uit ",     // NL
	"Foto dal ",       // IT
	"Foto del ",       // IT (alternate)
	"Zdjęcia z ",      // PL
	"Фото за ",        // RU
	"Фотографии за ",  // RU (alternate)
	"Fotky z ",        // CS
	"Fotografii din ", // RO
	"Foton från ",     // SV
	"Bilder fra ",     // NO
	"Billeder fra ",   // DA
	"Valokuvat ",      // FI
	"Fényképek - ",    // HU
	"Fotoğraflar ",    // TR
}

// Localized year-folder suffixes: "YYYY<suffix>".
var yearFolderSuffixes = []string{
	" 年の写真", // JA
	"年のフォト",  // JA (alternate)
	"년의 사진",  // KO
	"年的照片",   // ZH-CN
	"年的相片",   // ZH-TW
}

// Tokens that identify the "Google Photos" path segment across locales.
var photosTokens = []string{"hoto", "ото", "フォト", "照片", "사진"}

var yearRe = regexp.MustCompile(`^(18|19|20)\d{2}$`)

// IsYearFolder reports whether a single path component names a Takeout
// year folder, e.g. "Photos from 2023" or "2023年的照片".
func IsYearFolder(name string) bool {
	for _, prefix := range yearFolderPrefixes {
		if rest, ok := strings.CutPrefix(name, prefix); ok && yearRe.MatchString(rest) {
			return true
		}
	}
	for _, suffix := range yearFolderSuffixes {
		if rest, ok := strings.CutSuffix(name, suffix); ok && yearRe.MatchString(rest) {
			return true
		}
	}
	return false
}

// InYearFolder reports whether any component of a zip entry path is a
// year folder.
func InYearFolder(zipPath string) bool {
	for _, component := range strings.Split(zipPath, "/") {
		if IsYearFolder(component) {
			return true
		}
	}
	return false
}

// AlbumName extracts the album name from a zip entry path. An album is
// the component immediately after the localized "Google Photos" segment
// when that component is not a year folder and still has at least one
// component below it.
func AlbumName(zipPath string) (string, bool) {
	parts := strings.Split(zipPath, "/")
	for i := 0; i+2 < len(parts); i++ {
		p := parts[i]
		if !strings.HasPrefix(p, "Google") {
			continue
		}
		matched := false
		for _, token := range photosTokens {
			if strings.Contains(p, token) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		folder := parts[i+1]
		if folder != "" && !IsYearFolder(folder) {
			return folder, true
		}
	}
	return "", false
}
