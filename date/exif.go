package date

import (
	"bytes"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

var exifDateTags = []exif.FieldName{
	exif.DateTimeOriginal,
	exif.DateTimeDigitized,
	exif.DateTime,
}

// FromEXIF extracts a capture date from raw image bytes. EXIF datetimes
// carry no timezone; values are taken as local wall-clock time.
func FromEXIF(data []byte) (time.Time, bool) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return time.Time{}, false
	}

	for _, name := range exifDateTags {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		val, err := tag.StringVal()
		if err != nil {
			continue
		}
		if t, ok := parseEXIFDateTime(val); ok {
			return t, true
		}
	}

	return time.Time{}, false
}

var exifSeparators = strings.NewReplacer("-", ":", "/", ":", `\`, ":", ".", ":")

// parseEXIFDateTime accepts "YYYY:MM:DD HH:MM:SS" after normalizing the
// separators some cameras write instead of colons, and a bare date at
// midnight when the time portion is absent.
func parseEXIFDateTime(s string) (time.Time, bool) {
	cleaned := exifSeparators.Replace(strings.TrimSpace(s))

	if t, err := time.ParseInLocation("2006:01:02 15:04:05", cleaned, time.Local); err == nil {
		return t, true
	}

	datePart, _, _ := strings.Cut(cleaned, " ")
	if t, err := time.ParseInLocation("2006:01:02", datePart, time.Local); err == nil {
		return t, true
	}

	return time.Time{}, false
}
