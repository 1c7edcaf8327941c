package date

import (
	"encoding/json"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bleemesser/takeoutsort/classify"
)

// Takeout limits sidecar basenames to 51 characters including ".json",
// so long media names arrive truncated on export.
const sidecarNameLimit = 51

// sidecarData mirrors the fields of a Google Photos JSON sidecar that
// matter here. The timestamp may be a decimal string or a bare integer.
type sidecarData struct {
	PhotoTakenTime struct {
		Timestamp json.RawMessage `json:"timestamp"`
	} `json:"photoTakenTime"`
}

// ParseSidecar extracts photoTakenTime from sidecar bytes and converts
// the UTC epoch to the host-local wall-clock time, which is how Takeout
// itself stamps exported files.
func ParseSidecar(data []byte) (time.Time, bool) {
	var sc sidecarData
	if err := json.Unmarshal(data, &sc); err != nil {
		return time.Time{}, false
	}
	raw := sc.PhotoTakenTime.Timestamp
	if len(raw) == 0 {
		return time.Time{}, false
	}

	var epoch int64
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		parsed, err := strconv.ParseInt(asString, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		epoch = parsed
	} else if err := json.Unmarshal(raw, &epoch); err != nil {
		return time.Time{}, false
	}

	return time.Unix(epoch, 0), true
}

// Index maps archive-internal media paths to sidecar dates. Every
// sidecar is registered under all of its name-transformation variants,
// so a lookup is a single probe.
type Index map[string]time.Time

// NewIndex returns an empty date index.
func NewIndex() Index {
	return make(Index)
}

// transforms is the closed catalog of sidecar-to-media name mappings.
// Each sidecar registers one key per transform; first writer wins.
var transforms = []func(string) string{
	func(s string) string { return s },
	shortenName,
	bracketSwap,
	classify.StripExtra,
	noExtension,
	removeExtraSuffix,
	collapseBracketDigit,
}

// Register adds the date for the media file described by a sidecar at
// jsonPath, under every transformation variant of its basename.
func (idx Index) Register(jsonPath string, t time.Time) {
	base := path.Base(jsonPath)
	mediaName, ok := strings.CutSuffix(base, ".json")
	if !ok {
		return
	}

	dir := path.Dir(jsonPath)
	for _, transform := range transforms {
		key := transform(mediaName)
		if dir != "." {
			key = dir + "/" + key
		}
		if _, exists := idx[key]; !exists {
			idx[key] = t
		}
	}
}

// Lookup probes the index with an exact archive path.
func (idx Index) Lookup(zipPath string) (time.Time, bool) {
	t, ok := idx[zipPath]
	return t, ok
}

// shortenName truncates a media basename the way Takeout truncates
// sidecar names, on a UTF-8 rune boundary.
func shortenName(name string) string {
	if len(name)+len(".json") <= sidecarNameLimit {
		return name
	}
	end := sidecarNameLimit - len(".json")
	for end > 0 && !utf8.RuneStart(name[end]) {
		end--
	}
	return name[:end]
}

var bracketRe = regexp.MustCompile(`\(\d+\)\.`)

// bracketSwap moves the last "(N)" before an extension to the end of
// the name: "foo(1).jpg" becomes "foo.jpg(1)". Google names duplicate
// uploads one way and their sidecars the other.
func bracketSwap(name string) string {
	locs := bracketRe.FindAllStringIndex(name, -1)
	if len(locs) == 0 {
		return name
	}
	last := locs[len(locs)-1]
	bracket := strings.TrimSuffix(name[last[0]:last[1]], ".")
	pos := strings.LastIndex(name, bracket)
	if pos < 0 {
		return name
	}
	return name[:pos] + name[pos+len(bracket):] + bracket
}

func noExtension(name string) string {
	ext := path.Ext(name)
	if ext == "" {
		return name
	}
	return strings.TrimSuffix(name, ext)
}

var extraSuffixRe = regexp.MustCompile(`-[A-Za-zÀ-ÖØ-öø-ÿ]+(\(\d\))?\.\w+$`)

// removeExtraSuffix drops a "-word" suffix before the extension, but
// only when the pattern matches exactly once.
func removeExtraSuffix(name string) string {
	locs := extraSuffixRe.FindAllStringSubmatchIndex(name, -1)
	if len(locs) != 1 {
		return name
	}
	m := locs[0]
	ext := path.Ext(name)
	return name[:m[0]] + ext
}

var bracketDigitRe = regexp.MustCompile(`\(\d\)\.`)

// collapseBracketDigit rewrites every single-digit "(N)." to ".";
// brackets with two or more digits are left as they are.
func collapseBracketDigit(name string) string {
	return bracketDigitRe.ReplaceAllString(name, ".")
}
