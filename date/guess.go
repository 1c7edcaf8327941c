package date

import (
	"path"
	"regexp"
	"time"
)

const compactLayout = "20060102150405"

// Filename timestamp patterns, tried in order. Years are constrained to
// 18xx-20xx and months to 01-12 in the regex; day and time validity is
// left to the parse.
var guessPatterns = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`(18|19|20)\d{2}(0[1-9]|1[0-2])[0-3]\d-\d{6}`), "20060102-150405"},
	{regexp.MustCompile(`(18|19|20)\d{2}(0[1-9]|1[0-2])[0-3]\d_\d{6}`), "20060102_150405"},
	{regexp.MustCompile(`(18|19|20)\d{2}-(0[1-9]|1[0-2])-[0-3]\d-\d{2}-\d{2}-\d{2}`), "2006-01-02-15-04-05"},
	{regexp.MustCompile(`(18|19|20)\d{2}-(0[1-9]|1[0-2])-[0-3]\d-\d{6}`), "2006-01-02-150405"},
	{regexp.MustCompile(`(18|19|20)\d{2}(0[1-9]|1[0-2])[0-3]\d{7}`), compactLayout},
	{regexp.MustCompile(`(18|19|20)\d{2}_(0[1-9]|1[0-2])_[0-3]\d_\d{2}_\d{2}_\d{2}`), "2006_01_02_15_04_05"},
}

// GuessFilename extracts a timestamp from common camera and screenshot
// filename encodings, e.g. "Screenshot_20190919-053857.jpg".
func GuessFilename(name string) (time.Time, bool) {
	base := path.Base(name)

	for _, p := range guessPatterns {
		m := p.re.FindString(base)
		if m == "" {
			continue
		}
		// The all-digit pattern matches exactly 14 digits, so any digits
		// after the timestamp stay outside the match; the guard keeps the
		// date to the leading 14 digits regardless.
		if p.layout == compactLayout && len(m) > 14 {
			m = m[:14]
		}
		if t, err := time.ParseInLocation(p.layout, m, time.Local); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}
