package pipeline

import (
	"archive/zip"
	"io"
	"sync"
	"sync/atomic"

	"github.com/bleemesser/takeoutsort/checkpoint"
	"github.com/bleemesser/takeoutsort/date"
	"github.com/bleemesser/takeoutsort/media"
)

type exifResult struct {
	index  int
	result date.Result
	ok     bool
}

// exifPass reads the target entries fully into memory and runs EXIF
// extraction, sliced by archive and chunked across workers. Each worker
// owns its archive handle; results are installed into the shared media
// slice only after all workers have joined. Read or parse failures just
// leave the date unset.
func exifPass(mediaList []media.Media, targets []int, opts Options,
	token *checkpoint.Token, tp *throttledProgress, stage string) error {

	if len(targets) == 0 {
		return nil
	}
	total := uint64(len(targets))
	report := tp.stage(stage)

	byZip := make(map[int][]int)
	for _, idx := range targets {
		zi := mediaList[idx].ZipIndex
		byZip[zi] = append(byZip[zi], idx)
	}

	var counter atomic.Uint64
	var all []exifResult

	for zipIndex, indices := range byZip {
		if err := token.Check(); err != nil {
			return err
		}
		zipPath := opts.ZipFiles[zipIndex]

		chunks := chunkInts(indices, opts.Workers)
		results := make([][]exifResult, len(chunks))
		errs := make([]error, len(chunks))
		var wg sync.WaitGroup
		for ci, chunk := range chunks {
			wg.Add(1)
			go func(ci int, chunk []int) {
				defer wg.Done()
				results[ci], errs[ci] = exifChunk(mediaList, chunk, zipPath, token, &counter, total, report)
			}(ci, chunk)
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				return err
			}
		}
		for _, rs := range results {
			all = append(all, rs...)
		}
	}

	for _, r := range all {
		if r.ok {
			mediaList[r.index].Date = r.result.Date
			mediaList[r.index].DateAccuracy = r.result.Accuracy
		}
	}
	return nil
}

func exifChunk(mediaList []media.Media, chunk []int, zipPath string, token *checkpoint.Token,
	counter *atomic.Uint64, total uint64, report func(current, total uint64, message string)) ([]exifResult, error) {

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, nil
	}
	defer r.Close()

	results := make([]exifResult, 0, len(chunk))
	for _, idx := range chunk {
		if err := token.Check(); err != nil {
			return results, err
		}

		m := &mediaList[idx]
		if m.EntryIndex < len(r.File) {
			if data, err := readFull(r.File[m.EntryIndex]); err == nil {
				if t, ok := date.FromEXIF(data); ok {
					results = append(results, exifResult{
						index:  idx,
						result: date.Result{Date: t, Accuracy: media.AccuracyEXIF},
						ok:     true,
					})
				}
			}
		}

		current := counter.Add(1)
		report(current-1, total, "Reading EXIF")
	}
	return results, nil
}

func readFull(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func chunkInts(indices []int, n int) [][]int {
	if n < 1 {
		n = 1
	}
	chunkSize := (len(indices) + n - 1) / n
	var chunks [][]int
	for start := 0; start < len(indices); start += chunkSize {
		end := start + chunkSize
		if end > len(indices) {
			end = len(indices)
		}
		chunks = append(chunks, indices[start:end])
	}
	return chunks
}
