// Package date recovers capture timestamps from the three sources a
// Takeout export offers: sidecar JSON, embedded EXIF, and the filename
// itself. All three are treated as local wall-clock time.
package date

import (
	"time"

	"github.com/bleemesser/takeoutsort/media"
)

// Result is an extracted date with its source rank.
type Result struct {
	Date     time.Time
	Accuracy uint8
}

// Pick selects the highest-priority available date. jsonDate is ignored
// when zero, mediaBytes skips the EXIF probe when nil, and guessing is
// gated by allowGuess.
func Pick(jsonDate time.Time, mediaBytes []byte, filename string, allowGuess bool) (Result, bool) {
	if !jsonDate.IsZero() {
		return Result{Date: jsonDate, Accuracy: media.AccuracyJSON}, true
	}

	if mediaBytes != nil {
		if t, ok := FromEXIF(mediaBytes); ok {
			return Result{Date: t, Accuracy: media.AccuracyEXIF}, true
		}
	}

	if allowGuess {
		if t, ok := GuessFilename(filename); ok {
			return Result{Date: t, Accuracy: media.AccuracyGuess}, true
		}
	}

	return Result{}, false
}
