// Package writer assigns collision-free destinations and extracts the
// surviving media into the output tree, stamping each file's mtime with
// its capture time.
package writer

import (
	"archive/zip"
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/bleemesser/takeoutsort/checkpoint"
	"github.com/bleemesser/takeoutsort/media"
)

// Options control layout and album behavior for one run.
type Options struct {
	OutputDir     string
	DivideToDates bool
	// AlbumDest is "year", "album", or "" when albums are off.
	AlbumDest string
	AlbumLink bool
	// Force skips the existing-output pre-scan.
	Force   bool
	Workers int
}

// Result reports what the write stage did.
type Result struct {
	// Assignments holds the output path chosen for each media, by index.
	Assignments []string
	// Skipped counts media covered by the checkpoint or by an existing
	// file of the same size (contents are not compared).
	Skipped uint64
	// Written counts files actually extracted this run.
	Written uint64
	// BytesWritten sums the sizes of extracted files.
	BytesWritten uint64
	Warnings     []string
}

// Reporter receives write progress.
type Reporter func(current, total uint64, message string)

type assignment struct {
	mediaIndex int
	dest       string
}

// Run assigns destinations sequentially, then extracts in parallel per
// archive. The saver is only touched from this goroutine; workers push
// written-file records into a mutex-guarded collector that is drained
// after each archive group and on cancellation.
func Run(mediaList []media.Media, zipPaths []string, opts Options,
	saver *checkpoint.Saver, token *checkpoint.Token, report Reporter) (*Result, error) {

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	res := &Result{Assignments: make([]string, len(mediaList))}

	writtenMap := saver.WrittenMap()

	// One directory walk replaces a stat per media. On resume the
	// checkpoint already knows what exists, so the walk is skipped.
	existing := make(map[string]int64)
	if !opts.Force && len(writtenMap) == 0 {
		existing = scanExisting(opts.OutputDir)
	}

	toWrite, err := assignDestinations(mediaList, opts, writtenMap, existing, res)
	if err != nil {
		return nil, err
	}

	if err := writeAll(mediaList, zipPaths, toWrite, opts, saver, token, report, res); err != nil {
		return res, err
	}

	if opts.AlbumDest == "album" {
		if err := writeAlbumFolders(mediaList, res.Assignments, opts, res); err != nil {
			return res, err
		}
	}

	return res, nil
}

// assignDestinations is strictly sequential: collision numbering is
// stateful and must be deterministic in media order.
func assignDestinations(mediaList []media.Media, opts Options,
	writtenMap map[string]string, existing map[string]int64, res *Result) ([]assignment, error) {

	nameCounters := make(map[string]int)
	usedPaths := make(map[string]bool)
	createdDirs := make(map[string]bool)
	var toWrite []assignment

	for i := range mediaList {
		m := &mediaList[i]

		// Already written in a previous run: reuse and skip.
		if prev, ok := writtenMap[m.ZipPath]; ok {
			res.Assignments[i] = prev
			usedPaths[prev] = true
			res.Skipped++
			continue
		}

		subDir := opts.OutputDir
		if opts.DivideToDates {
			if !m.Date.IsZero() {
				subDir = filepath.Join(opts.OutputDir, m.Date.Format("2006"), m.Date.Format("01"))
			} else {
				subDir = filepath.Join(opts.OutputDir, "date-unknown")
			}
		}
		if !createdDirs[subDir] {
			if err := os.MkdirAll(subDir, 0755); err != nil {
				return nil, fmt.Errorf("creating %s: %w", subDir, err)
			}
			createdDirs[subDir] = true
		}

		base := filepath.Join(subDir, m.Filename)
		counter := nameCounters[base]

		var dest string
		if counter == 0 && !usedPaths[base] {
			if size, ok := existing[base]; !ok {
				dest = base
			} else if size == int64(m.Size) {
				// Same-size file already on disk: idempotent resume.
				res.Assignments[i] = base
				usedPaths[base] = true
				res.Skipped++
				continue
			}
		}
		if dest == "" {
			stem := strings.TrimSuffix(m.Filename, filepath.Ext(m.Filename))
			ext := filepath.Ext(m.Filename)
			for {
				counter++
				candidate := filepath.Join(subDir, fmt.Sprintf("%s(%d)%s", stem, counter, ext))
				if !usedPaths[candidate] {
					if _, exists := existing[candidate]; !exists {
						dest = candidate
						break
					}
				}
			}
			nameCounters[base] = counter
		}

		usedPaths[dest] = true
		res.Assignments[i] = dest
		toWrite = append(toWrite, assignment{mediaIndex: i, dest: dest})
	}

	return toWrite, nil
}

// writtenRecord is what workers hand back for the checkpoint.
type writtenRecord struct {
	zipPath    string
	outputPath string
	size       uint64
}

type collector struct {
	mu      sync.Mutex
	records []writtenRecord
}

func (c *collector) add(r writtenRecord) {
	c.mu.Lock()
	c.records = append(c.records, r)
	c.mu.Unlock()
}

func (c *collector) drain() []writtenRecord {
	c.mu.Lock()
	records := c.records
	c.records = nil
	c.mu.Unlock()
	return records
}

func writeAll(mediaList []media.Media, zipPaths []string, toWrite []assignment, opts Options,
	saver *checkpoint.Saver, token *checkpoint.Token, report Reporter, res *Result) error {

	total := uint64(len(toWrite))
	if total == 0 {
		return nil
	}

	byZip := make(map[int][]assignment)
	for _, a := range toWrite {
		zi := mediaList[a.mediaIndex].ZipIndex
		byZip[zi] = append(byZip[zi], a)
	}

	var counter atomic.Uint64
	var warnings atomic.Uint64
	coll := &collector{}

	drain := func() {
		for _, r := range coll.drain() {
			saver.MarkWritten(r.zipPath, r.outputPath, r.size)
			res.Written++
			res.BytesWritten += r.size
		}
	}

	for zipIndex, group := range byZip {
		if err := token.Check(); err != nil {
			drain()
			return err
		}
		zipPath := zipPaths[zipIndex]

		chunks := splitChunks(group, opts.Workers)
		errs := make([]error, len(chunks))
		var wg sync.WaitGroup
		for ci, chunk := range chunks {
			wg.Add(1)
			go func(ci int, chunk []assignment) {
				defer wg.Done()
				errs[ci] = writeChunk(mediaList, chunk, zipPath, token, coll, &counter, &warnings, total, report)
			}(ci, chunk)
		}
		wg.Wait()
		drain()

		for _, err := range errs {
			if err != nil {
				return err
			}
		}
	}

	if n := warnings.Load(); n > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d files could not be extracted", n))
	}
	return nil
}

// writeChunk extracts one chunk of assignments through its own archive
// handle. Per-entry failures are counted and skipped; only cancellation
// aborts the chunk.
func writeChunk(mediaList []media.Media, chunk []assignment, zipPath string, token *checkpoint.Token,
	coll *collector, counter, warnings *atomic.Uint64, total uint64, report Reporter) error {

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		logrus.WithError(err).WithField("zip", zipPath).Warn("cannot open archive for writing")
		warnings.Add(uint64(len(chunk)))
		return nil
	}
	defer r.Close()

	for _, a := range chunk {
		if err := token.Check(); err != nil {
			return err
		}

		m := &mediaList[a.mediaIndex]
		if err := extractEntry(r, m, a.dest); err != nil {
			logrus.WithError(err).WithField("entry", m.ZipPath).Warn("extract failed")
			warnings.Add(1)
			continue
		}

		if !m.Date.IsZero() {
			// Failure to stamp is not failure to write.
			if err := os.Chtimes(a.dest, m.Date, m.Date); err != nil {
				logrus.WithError(err).WithField("path", a.dest).Debug("could not set mtime")
			}
		}

		coll.add(writtenRecord{zipPath: m.ZipPath, outputPath: a.dest, size: m.Size})
		current := counter.Add(1)
		report(current-1, total, "Writing files")
	}
	return nil
}

func extractEntry(r *zip.ReadCloser, m *media.Media, dest string) error {
	if m.EntryIndex >= len(r.File) {
		return fmt.Errorf("entry index %d out of range", m.EntryIndex)
	}
	rc, err := r.File[m.EntryIndex].Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	if _, err := w.ReadFrom(rc); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := w.Flush(); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}

// scanExisting walks the output tree once and records file sizes.
func scanExisting(outputDir string) map[string]int64 {
	existing := make(map[string]int64)
	_ = filepath.WalkDir(outputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			existing[path] = info.Size()
		}
		return nil
	})
	return existing
}

func splitChunks(assignments []assignment, n int) [][]assignment {
	if n < 1 {
		n = 1
	}
	chunkSize := (len(assignments) + n - 1) / n
	var chunks [][]assignment
	for start := 0; start < len(assignments); start += chunkSize {
		end := start + chunkSize
		if end > len(assignments) {
			end = len(assignments)
		}
		chunks = append(chunks, assignments[start:end])
	}
	return chunks
}
