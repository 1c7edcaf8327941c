// Package scan performs the single classification pass over the input
// archives: media entries, JSON sidecars, and album members are all
// collected without extracting anything to disk.
package scan

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/japanese"

	"github.com/bleemesser/takeoutsort/checkpoint"
	"github.com/bleemesser/takeoutsort/classify"
	"github.com/bleemesser/takeoutsort/date"
	"github.com/bleemesser/takeoutsort/media"
)

// Options selects the optional scan behaviors.
type Options struct {
	// SkipExtras drops "-edited" style derivatives during the scan.
	SkipExtras bool
	// Albums collects album-folder membership.
	Albums bool
}

// Result is everything one pass over the archives produces.
type Result struct {
	Media []media.Media
	// Dates maps archive paths (with name variants) to sidecar dates.
	Dates date.Index
	// AlbumEntries groups tentative album members by album name.
	AlbumEntries map[string][]media.AlbumEntry
	// Warnings collects non-fatal per-entry problems.
	Warnings []string
}

// Reporter receives per-archive scan progress.
type Reporter func(current, total uint64, message string)

// Archives scans every input zip once, in order. Archive-level failures
// are fatal; individual sidecar read failures become warnings.
func Archives(zipPaths []string, opts Options, token *checkpoint.Token, report Reporter) (*Result, error) {
	res := &Result{
		Dates:        date.NewIndex(),
		AlbumEntries: make(map[string][]media.AlbumEntry),
	}

	for zipIndex, zipPath := range zipPaths {
		if err := token.Check(); err != nil {
			return nil, err
		}
		if err := scanArchive(zipPath, zipIndex, opts, token, report, res); err != nil {
			return nil, err
		}
	}

	return res, nil
}

func scanArchive(zipPath string, zipIndex int, opts Options, token *checkpoint.Token, report Reporter, res *Result) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", zipPath, err)
	}
	defer r.Close()

	zipName := filepath.Base(zipPath)
	total := uint64(len(r.File))

	for i, f := range r.File {
		if err := token.Check(); err != nil {
			return err
		}
		report(uint64(i), total, "Scanning "+zipName)

		entryPath := decodeName(f.Name)
		if f.FileInfo().IsDir() {
			continue
		}

		filename := path.Base(entryPath)
		if filename == "" || filename == "." || filename == "/" {
			continue
		}

		// Sidecars are parsed on the spot and contribute only dates.
		if strings.HasSuffix(entryPath, ".json") {
			data, err := readEntry(f)
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("unreadable sidecar %s: %v", entryPath, err))
				logrus.WithField("entry", entryPath).Debug("skipping unreadable sidecar")
				continue
			}
			if t, ok := date.ParseSidecar(data); ok {
				res.Dates.Register(entryPath, t)
			}
			continue
		}

		if !IsMedia(filename) {
			continue
		}

		if opts.SkipExtras {
			stem := strings.TrimSuffix(filename, path.Ext(filename))
			if classify.IsExtra(stem) {
				continue
			}
		}

		size := f.UncompressedSize64

		if opts.Albums {
			if album, ok := classify.AlbumName(entryPath); ok {
				res.AlbumEntries[album] = append(res.AlbumEntries[album], media.AlbumEntry{
					Filename:   filename,
					ZipPath:    entryPath,
					ZipIndex:   zipIndex,
					EntryIndex: i,
					Size:       size,
				})
				if !classify.InYearFolder(entryPath) {
					continue
				}
			}
		}

		// Media records come from year folders only; album-only entries
		// are promoted later during the merge if they match nothing.
		if !classify.InYearFolder(entryPath) {
			continue
		}

		res.Media = append(res.Media, media.New(entryPath, zipIndex, i, filename, size))
	}

	report(total, total, "Scanned "+zipName)
	return nil
}

// decodeName decodes an archive-local entry name: UTF-8 when valid,
// then Shift_JIS (Japanese exports predate the zip UTF-8 flag), then
// lossy UTF-8 as a last resort.
func decodeName(raw string) string {
	if utf8.ValidString(raw) {
		return raw
	}
	if decoded, err := japanese.ShiftJIS.NewDecoder().String(raw); err == nil {
		return decoded
	}
	return strings.ToValidUTF8(raw, string(utf8.RuneError))
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
