// Package media holds the records shared by every pipeline stage.
package media

import "time"

// Date accuracy ranks, best first. A Media with AccuracyNone has no date.
const (
	AccuracyJSON  uint8 = 0
	AccuracyEXIF  uint8 = 1
	AccuracyGuess uint8 = 2
	AccuracyNone  uint8 = 255
)

// Media is one media entry found inside an input archive.
type Media struct {
	// Path of the entry inside the zip, forward slashes.
	ZipPath string
	// Index of the zip file in the input list.
	ZipIndex int
	// Index of this entry within the zip archive, for by-index reopen.
	EntryIndex int
	// Last path component of ZipPath.
	Filename string
	// Uncompressed size in bytes.
	Size uint64
	// Hex SHA-256, set by dedup only for entries that share a size.
	Hash string
	// Capture date as local wall-clock time; zero when unknown.
	Date time.Time
	// Rank of the source the date came from; AccuracyNone when Date is zero.
	DateAccuracy uint8
	// Album names this media belongs to, in first-seen order.
	Albums []string
}

// New returns a Media with no date and no albums.
func New(zipPath string, zipIndex, entryIndex int, filename string, size uint64) Media {
	return Media{
		ZipPath:      zipPath,
		ZipIndex:     zipIndex,
		EntryIndex:   entryIndex,
		Filename:     filename,
		Size:         size,
		DateAccuracy: AccuracyNone,
	}
}

// AddAlbum records album membership, preserving first-insertion order.
func (m *Media) AddAlbum(name string) {
	for _, a := range m.Albums {
		if a == name {
			return
		}
	}
	m.Albums = append(m.Albums, name)
}

// AlbumEntry is a tentative record for a file found inside an album folder.
// It lives only between the scan and the album merge, where it is either
// matched to an existing Media by (filename, size) or promoted to a new one.
type AlbumEntry struct {
	Filename   string
	ZipPath    string
	ZipIndex   int
	EntryIndex int
	Size       uint64
}
