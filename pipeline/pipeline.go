// Package pipeline sequences the four processing stages over a set of
// Takeout archives: scan, date extraction, dedup, write. Stages share
// one media table, a cancellation token, a progress throttle, and a
// durable checkpoint.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/bleemesser/takeoutsort/checkpoint"
	"github.com/bleemesser/takeoutsort/date"
	"github.com/bleemesser/takeoutsort/dedup"
	"github.com/bleemesser/takeoutsort/hashcache"
	"github.com/bleemesser/takeoutsort/media"
	"github.com/bleemesser/takeoutsort/scan"
	"github.com/bleemesser/takeoutsort/writer"
)

// exifSizeLimit caps which entries the EXIF pass will load into memory.
const exifSizeLimit = 32 * 1024 * 1024

// Options describe one processing run.
type Options struct {
	ZipFiles      []string
	Output        string
	DivideToDates bool
	SkipExtras    bool
	NoGuess       bool
	Albums        bool
	// AlbumDest is "year" (default) or "album".
	AlbumDest string
	AlbumLink bool
	// AlbumJSON overrides the default <output>/albums.json location.
	AlbumJSON string
	// Workers defaults to the detected hardware parallelism.
	Workers int
}

// Control carries run-control state alongside the options.
type Control struct {
	// Resume consults an existing compatible checkpoint.
	Resume bool
	// Force discards any checkpoint and ignores existing output files.
	Force bool
	Token *checkpoint.Token
	// HashCachePath enables the persistent dedup hash cache.
	HashCachePath string
}

// Result aggregates what a completed run did.
type Result struct {
	TotalMedia        uint64
	DuplicatesRemoved uint64
	FilesWritten      uint64
	FilesSkipped      uint64
	BytesWritten      uint64
	Warnings          []string
}

// Process runs the pipeline with default control: resume if possible,
// no external cancellation.
func Process(opts Options, progress ProgressFunc) (*Result, error) {
	return ProcessWithControl(opts, Control{Resume: true}, progress)
}

// ProcessWithControl runs the full pipeline. On cancellation the
// checkpoint is force-saved and checkpoint.ErrCancelled is returned;
// on success the checkpoint is removed.
func ProcessWithControl(opts Options, ctl Control, progress ProgressFunc) (*Result, error) {
	if len(opts.ZipFiles) == 0 {
		return nil, errors.New("no input archives")
	}
	if opts.Workers < 1 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.AlbumDest == "" {
		opts.AlbumDest = "year"
	}
	token := ctl.Token
	if token == nil {
		token = checkpoint.NewToken()
	}

	if err := os.MkdirAll(opts.Output, 0755); err != nil {
		return nil, fmt.Errorf("creating output root: %w", err)
	}

	saver, err := prepareCheckpoint(opts, ctl)
	if err != nil {
		return nil, err
	}

	tp := newThrottledProgress(progress)
	res := &Result{}

	// Stage 1: scan.
	saver.SetStage("scan")
	scanRes, err := scan.Archives(opts.ZipFiles, scan.Options{
		SkipExtras: opts.SkipExtras,
		Albums:     opts.Albums,
	}, token, tp.stage("scan"))
	if err != nil {
		saver.ForceSave()
		return nil, err
	}
	res.Warnings = append(res.Warnings, scanRes.Warnings...)

	mediaList := scanRes.Media
	if len(mediaList) == 0 && len(scanRes.AlbumEntries) == 0 {
		// Nothing to do; don't leave a checkpoint behind.
		if err := saver.MarkCompleted(); err != nil {
			logrus.WithError(err).Warn("could not remove checkpoint")
		}
		return res, nil
	}

	// Stage 2: dates. The JSON and filename passes touch no I/O.
	saver.SetStage("date")
	allowGuess := !opts.NoGuess
	datePass(mediaList, scanRes.Dates, allowGuess)
	total := uint64(len(mediaList))
	tp.report("date", total, total, "JSON/filename dates extracted")

	if err := exifPass(mediaList, allTargets(mediaList), opts, token, tp, "date-exif"); err != nil {
		saver.ForceSave()
		return nil, err
	}

	// Stage 2.5: album merge, then dates for the album-only newcomers.
	if opts.Albums && len(scanRes.AlbumEntries) > 0 {
		appendedFrom := len(mediaList)
		mediaList = mergeAlbums(mediaList, scanRes.AlbumEntries)
		appended := mediaList[appendedFrom:]
		datePass(appended, scanRes.Dates, allowGuess)
		targets := allTargets(mediaList)
		var appendedTargets []int
		for _, idx := range targets {
			if idx >= appendedFrom {
				appendedTargets = append(appendedTargets, idx)
			}
		}
		if err := exifPass(mediaList, appendedTargets, opts, token, tp, "date-exif-album"); err != nil {
			saver.ForceSave()
			return nil, err
		}
	}

	res.TotalMedia = uint64(len(mediaList))

	// Stage 3: dedup.
	saver.SetStage("dedup")
	if err := saver.SaveNow(); err != nil {
		return nil, fmt.Errorf("checkpoint not writable: %w", err)
	}

	var cache *hashcache.Cache
	if ctl.HashCachePath != "" {
		cache, err = hashcache.Open(ctl.HashCachePath)
		if err != nil {
			logrus.WithError(err).Warn("hash cache unavailable")
			res.Warnings = append(res.Warnings, fmt.Sprintf("hash cache unavailable: %v", err))
		} else {
			defer cache.Close()
		}
	}

	dedupRes, err := dedup.Run(mediaList, opts.ZipFiles, saver.Checkpoint().ZipMtimes,
		opts.Workers, cache, token, tp.stage("dedup"))
	if err != nil {
		saver.ForceSave()
		return nil, err
	}
	mediaList = dedupRes.Media
	res.Warnings = append(res.Warnings, dedupRes.Warnings...)
	res.DuplicatesRemoved = res.TotalMedia - uint64(len(mediaList))

	// Stage 4: write.
	saver.SetStage("write")
	if err := saver.SaveNow(); err != nil {
		return nil, fmt.Errorf("checkpoint not writable: %w", err)
	}

	writeRes, err := writer.Run(mediaList, opts.ZipFiles, writer.Options{
		OutputDir:     opts.Output,
		DivideToDates: opts.DivideToDates,
		AlbumDest:     albumDest(opts),
		AlbumLink:     opts.AlbumLink,
		Force:         ctl.Force,
		Workers:       opts.Workers,
	}, saver, token, tp.stage("write"))
	if writeRes != nil {
		res.FilesWritten = writeRes.Written
		res.FilesSkipped = writeRes.Skipped
		res.BytesWritten = writeRes.BytesWritten
		res.Warnings = append(res.Warnings, writeRes.Warnings...)
	}
	if err != nil {
		saver.ForceSave()
		return nil, err
	}

	if opts.Albums && anyAlbums(mediaList) {
		jsonPath := opts.AlbumJSON
		if jsonPath == "" {
			jsonPath = filepath.Join(opts.Output, "albums.json")
		}
		if err := writer.WriteAlbumsJSON(mediaList, writeRes.Assignments, opts.Output, jsonPath); err != nil {
			return nil, err
		}
	}

	if err := saver.MarkCompleted(); err != nil {
		logrus.WithError(err).Warn("could not remove checkpoint")
	}
	return res, nil
}

// prepareCheckpoint loads a compatible checkpoint for resume or starts
// a fresh one. Incompatible checkpoints are discarded with a notice.
func prepareCheckpoint(opts Options, ctl Control) (*checkpoint.Saver, error) {
	layout := checkpoint.LayoutOptions{
		DivideToDates: opts.DivideToDates,
		SkipExtras:    opts.SkipExtras,
		NoGuess:       opts.NoGuess,
		Albums:        opts.Albums,
		AlbumDest:     opts.AlbumDest,
		AlbumLink:     opts.AlbumLink,
		Output:        opts.Output,
	}

	if ctl.Force {
		if err := checkpoint.Delete(opts.Output); err != nil {
			return nil, fmt.Errorf("removing old checkpoint: %w", err)
		}
	} else if ctl.Resume {
		existing, err := checkpoint.Load(opts.Output)
		if err != nil {
			logrus.WithError(err).Info("discarding unreadable checkpoint")
		} else if existing != nil {
			ok, err := existing.IsCompatible(layout, opts.ZipFiles)
			if err != nil {
				return nil, err
			}
			if ok {
				logrus.WithField("written", len(existing.WrittenFiles)).Info("resuming from checkpoint")
				return checkpoint.NewSaver(existing, opts.Output), nil
			}
			logrus.Info("existing checkpoint is incompatible, starting fresh")
		}
	}

	cp, err := checkpoint.New(layout, opts.ZipFiles)
	if err != nil {
		return nil, err
	}
	return checkpoint.NewSaver(cp, opts.Output), nil
}

// datePass runs the in-memory JSON and filename-guess extraction.
func datePass(mediaList []media.Media, dates date.Index, allowGuess bool) {
	for i := range mediaList {
		m := &mediaList[i]
		if !m.Date.IsZero() {
			continue
		}
		jsonDate, _ := dates.Lookup(m.ZipPath)
		if r, ok := date.Pick(jsonDate, nil, m.Filename, allowGuess); ok {
			m.Date = r.Date
			m.DateAccuracy = r.Accuracy
		}
	}
}

// allTargets selects the media worth an EXIF read: still undated,
// small enough to buffer, and an image.
func allTargets(mediaList []media.Media) []int {
	var targets []int
	for i := range mediaList {
		m := &mediaList[i]
		if m.Date.IsZero() && m.Size <= exifSizeLimit && scan.IsImage(m.Filename) {
			targets = append(targets, i)
		}
	}
	return targets
}

// mergeAlbums folds album entries into the media list: a (filename,
// size) match contributes its album name, anything else becomes a new
// album-only Media. Album names are visited in sorted order so the
// resulting list, and with it collision numbering, is deterministic.
func mergeAlbums(mediaList []media.Media, albumEntries map[string][]media.AlbumEntry) []media.Media {
	byKey := make(map[mergeKey]int, len(mediaList))
	for i := range mediaList {
		k := mergeKey{mediaList[i].Filename, mediaList[i].Size}
		if _, ok := byKey[k]; !ok {
			byKey[k] = i
		}
	}

	names := make([]string, 0, len(albumEntries))
	for name := range albumEntries {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, ae := range albumEntries[name] {
			if idx, ok := byKey[mergeKey{ae.Filename, ae.Size}]; ok {
				mediaList[idx].AddAlbum(name)
				continue
			}
			m := media.New(ae.ZipPath, ae.ZipIndex, ae.EntryIndex, ae.Filename, ae.Size)
			m.AddAlbum(name)
			mediaList = append(mediaList, m)
			byKey[mergeKey{ae.Filename, ae.Size}] = len(mediaList) - 1
		}
	}
	return mediaList
}

type mergeKey struct {
	filename string
	size     uint64
}

func albumDest(opts Options) string {
	if !opts.Albums {
		return ""
	}
	return opts.AlbumDest
}

func anyAlbums(mediaList []media.Media) bool {
	for i := range mediaList {
		if len(mediaList[i].Albums) > 0 {
			return true
		}
	}
	return false
}
