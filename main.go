// takeoutsort organizes Google Photos Takeout zip archives into a
// dated folder tree without extracting the archives first.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	bar "github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/bleemesser/takeoutsort/checkpoint"
	"github.com/bleemesser/takeoutsort/pipeline"
)

var version = "development"

func main() {
	var (
		output        = flag.String("output", "", "Output directory (required)")
		divideToDates = flag.Bool("divide-to-dates", false, "Organize into YYYY/MM subdirectories")
		skipExtras    = flag.Bool("skip-extras", false, "Skip -edited, -effects and similar derivative images")
		noGuess       = flag.Bool("no-guess", false, "Disable date guessing from filenames")
		albums        = flag.Bool("albums", false, "Process album folders (non-year named folders)")
		albumDest     = flag.String("album-dest", "year", `Album file output mode: "year" or "album"`)
		albumLink     = flag.Bool("album-link", false, "Use relative symlinks instead of copies for album output")
		albumJSON     = flag.String("album-json", "", "Output path for albums.json (default: <output>/albums.json)")
		force         = flag.Bool("force", false, "Ignore any existing checkpoint and start fresh")
		workers       = flag.Int("workers", 0, "Worker threads (default: number of CPUs)")
		hashCache     = flag.Bool("hash-cache", false, "Cache dedup hashes in <output>/.hashes.db across runs")
		verbose       = flag.Bool("verbose", false, "Enable debug logging")
		showVersion   = flag.Bool("version", false, "Show version information")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "takeoutsort v%s - organize Google Photos Takeout zips without extracting them\n\n", version)
		fmt.Fprintf(os.Stderr, "Usage: %s [options] -output DIR takeout-001.zip [takeout-002.zip ...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nAn interrupted run leaves %s in the output directory;\n", checkpoint.Filename)
		fmt.Fprintf(os.Stderr, "re-run with the same arguments to continue, or pass -force to start over.\n")
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("takeoutsort v%s\n", version)
		return
	}

	logrus.SetOutput(os.Stderr)
	logrus.SetLevel(logrus.InfoLevel)
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	zipFiles := flag.Args()
	if err := validate(*output, *albumDest, zipFiles); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		flag.Usage()
		os.Exit(1)
	}

	opts := pipeline.Options{
		ZipFiles:      zipFiles,
		Output:        *output,
		DivideToDates: *divideToDates,
		SkipExtras:    *skipExtras,
		NoGuess:       *noGuess,
		Albums:        *albums,
		AlbumDest:     *albumDest,
		AlbumLink:     *albumLink,
		AlbumJSON:     *albumJSON,
		Workers:       *workers,
	}
	ctl := pipeline.Control{
		Resume: !*force,
		Force:  *force,
		Token:  checkpoint.NewToken(),
	}
	if *hashCache {
		ctl.HashCachePath = filepath.Join(*output, ".hashes.db")
	}

	// Ctrl-C requests cooperative cancellation; workers stop at their
	// next check and the checkpoint is saved.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Fprintln(os.Stderr, "\nCancelling, saving checkpoint...")
		ctl.Token.Cancel()
	}()

	start := time.Now()
	result, err := pipeline.ProcessWithControl(opts, ctl, newProgressRenderer().report)

	if err != nil {
		if errors.Is(err, checkpoint.ErrCancelled) {
			fmt.Fprintln(os.Stderr, "Cancelled. Checkpoint saved; re-run to continue or pass -force to start fresh.")
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	for _, w := range result.Warnings {
		logrus.Warn(w)
	}

	fmt.Fprintf(os.Stderr, "Done! %d media files, %d duplicates removed, %d written (%s), %d skipped (%.2fs)\n",
		result.TotalMedia,
		result.DuplicatesRemoved,
		result.FilesWritten,
		humanize.Bytes(result.BytesWritten),
		result.FilesSkipped,
		time.Since(start).Seconds())
}

func validate(output, albumDest string, zipFiles []string) error {
	if output == "" {
		return errors.New("output directory is required")
	}
	if len(zipFiles) == 0 {
		return errors.New("at least one Takeout zip is required")
	}
	if albumDest != "year" && albumDest != "album" {
		return fmt.Errorf("invalid -album-dest %q", albumDest)
	}
	for _, z := range zipFiles {
		if _, err := os.Stat(z); err != nil {
			return fmt.Errorf("cannot read archive %s: %w", z, err)
		}
	}
	return nil
}

// progressRenderer maps pipeline progress events onto one progress bar
// per stage. Events arrive from worker goroutines, so rendering is
// serialized.
type progressRenderer struct {
	mu    sync.Mutex
	stage string
	total uint64
	bar   *bar.ProgressBar
}

func newProgressRenderer() *progressRenderer {
	return &progressRenderer{}
}

func (p *progressRenderer) report(stage string, current, total uint64, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if stage != p.stage || total != p.total || p.bar == nil {
		if p.bar != nil {
			p.bar.Finish()
		}
		p.stage = stage
		p.total = total
		p.bar = bar.NewOptions64(int64(total),
			bar.OptionSetDescription(fmt.Sprintf("[%s] %s", stage, message)),
			bar.OptionSetWriter(os.Stderr),
			bar.OptionShowCount(),
			bar.OptionClearOnFinish(),
		)
	}

	value := int64(current) + 1
	if max := int64(total); value > max {
		value = max
	}
	p.bar.Set64(value)
}
