package date

import (
	"testing"
	"time"

	"github.com/bleemesser/takeoutsort/media"
)

func TestParseEXIFDateTime(t *testing.T) {
	want := time.Date(2023, 9, 1, 12, 30, 45, 0, time.Local)
	midnight := time.Date(2023, 9, 1, 0, 0, 0, 0, time.Local)

	tests := []struct {
		input string
		want  time.Time
		ok    bool
	}{
		{"2023:09:01 12:30:45", want, true},
		// Nonstandard separators some cameras write.
		{"2023-09-01 12:30:45", want, true},
		{"2023/09/01 12:30:45", want, true},
		{`2023\09\01 12:30:45`, want, true},
		{"2023.09.01 12:30:45", want, true},
		// Date-only values are taken at midnight.
		{"2023:09:01", midnight, true},
		{"not a date", time.Time{}, false},
		{"", time.Time{}, false},
		{"2023:13:01 12:30:45", time.Time{}, false},
	}

	for _, tt := range tests {
		got, ok := parseEXIFDateTime(tt.input)
		if ok != tt.ok {
			t.Errorf("parseEXIFDateTime(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			continue
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("parseEXIFDateTime(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestFromEXIFRejectsGarbage(t *testing.T) {
	if _, ok := FromEXIF([]byte("not an image")); ok {
		t.Error("FromEXIF accepted non-image bytes")
	}
	if _, ok := FromEXIF(nil); ok {
		t.Error("FromEXIF accepted nil")
	}
}

func TestPickPriority(t *testing.T) {
	jsonDate := time.Unix(1000, 0)

	// JSON wins over everything.
	r, ok := Pick(jsonDate, nil, "IMG_20190509_154733.jpg", true)
	if !ok || r.Accuracy != media.AccuracyJSON || !r.Date.Equal(jsonDate) {
		t.Errorf("Pick with JSON = %+v, %v", r, ok)
	}

	// Filename guess is the fallback.
	r, ok = Pick(time.Time{}, nil, "IMG_20190509_154733.jpg", true)
	if !ok || r.Accuracy != media.AccuracyGuess {
		t.Errorf("Pick guess = %+v, %v", r, ok)
	}

	// Guessing can be disabled.
	if _, ok := Pick(time.Time{}, nil, "IMG_20190509_154733.jpg", false); ok {
		t.Error("Pick returned a date with guessing disabled")
	}

	// Nothing available.
	if _, ok := Pick(time.Time{}, nil, "IMG_1234.jpg", true); ok {
		t.Error("Pick returned a date from nothing")
	}
}
