// Package dedup removes content-identical media. Entries that share a
// size are hashed with SHA-256 straight off the archive streams; within
// each (size, hash) group the best-dated, shortest-named copy survives.
package dedup

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/bleemesser/takeoutsort/checkpoint"
	"github.com/bleemesser/takeoutsort/hashcache"
	"github.com/bleemesser/takeoutsort/media"
)

// hashBufferSize is the streaming read buffer; entries are never
// materialized whole.
const hashBufferSize = 64 * 1024

// Result carries the surviving media and any non-fatal warnings.
type Result struct {
	Media    []media.Media
	Warnings []string
}

// Reporter receives hashing progress.
type Reporter func(current, total uint64, message string)

// Run hashes size-colliding media and drops duplicates. Each worker
// opens its own archive handle; the media slice itself is only mutated
// here on the driver goroutine after the workers join.
func Run(mediaList []media.Media, zipPaths []string, zipMtimes []int64, workers int,
	cache *hashcache.Cache, token *checkpoint.Token, report Reporter) (*Result, error) {

	res := &Result{}

	// Group by size; singletons can't be duplicates.
	sizeGroups := make(map[uint64][]int)
	for i, m := range mediaList {
		sizeGroups[m.Size] = append(sizeGroups[m.Size], i)
	}
	var needsHash []int
	for _, indices := range sizeGroups {
		if len(indices) > 1 {
			needsHash = append(needsHash, indices...)
		}
	}

	if len(needsHash) > 0 {
		if err := hashAll(mediaList, needsHash, zipPaths, zipMtimes, workers, cache, token, report, res); err != nil {
			return nil, err
		}
	}

	removeDuplicates(&res.Media, mediaList)
	return res, nil
}

func hashAll(mediaList []media.Media, needsHash []int, zipPaths []string, zipMtimes []int64,
	workers int, cache *hashcache.Cache, token *checkpoint.Token, report Reporter, res *Result) error {

	// Consult the cache first; only misses hit the archives.
	var toHash []int
	for _, idx := range needsHash {
		m := &mediaList[idx]
		key := hashcache.Key{
			ZipPath:   zipPaths[m.ZipIndex],
			EntryPath: m.ZipPath,
			Size:      m.Size,
			ZipMtime:  zipMtimes[m.ZipIndex],
		}
		if cached := cache.Get(key); cached != "" {
			m.Hash = cached
			continue
		}
		toHash = append(toHash, idx)
	}

	total := uint64(len(toHash))
	if total == 0 {
		return nil
	}

	byZip := make(map[int][]int)
	for _, idx := range toHash {
		zi := mediaList[idx].ZipIndex
		byZip[zi] = append(byZip[zi], idx)
	}

	var counter atomic.Uint64
	skipped := 0
	fresh := make(map[hashcache.Key]string)

	for zipIndex, indices := range byZip {
		if err := token.Check(); err != nil {
			return err
		}
		zipPath := zipPaths[zipIndex]

		type chunkResult struct {
			hashes  []indexedHash
			skipped int
			err     error
		}

		chunks := splitChunks(indices, workers)
		results := make([]chunkResult, len(chunks))
		var wg sync.WaitGroup
		for ci, chunk := range chunks {
			wg.Add(1)
			go func(ci int, chunk []int) {
				defer wg.Done()
				hashes, skip, err := hashChunk(mediaList, chunk, zipPath, token, &counter, total, report)
				results[ci] = chunkResult{hashes: hashes, skipped: skip, err: err}
			}(ci, chunk)
		}
		wg.Wait()

		for _, cr := range results {
			if cr.err != nil {
				return cr.err
			}
			skipped += cr.skipped
			for _, h := range cr.hashes {
				m := &mediaList[h.index]
				m.Hash = h.hash
				fresh[hashcache.Key{
					ZipPath:   zipPath,
					EntryPath: m.ZipPath,
					Size:      m.Size,
					ZipMtime:  zipMtimes[zipIndex],
				}] = h.hash
			}
		}
	}

	if skipped > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("skipped %d files during dedup hashing", skipped))
	}
	if err := cache.PutAll(fresh); err != nil {
		logrus.WithError(err).Warn("could not update hash cache")
		res.Warnings = append(res.Warnings, fmt.Sprintf("hash cache update failed: %v", err))
	}
	return nil
}

type indexedHash struct {
	index int
	hash  string
}

// hashChunk streams every entry of one chunk through SHA-256 using its
// own archive handle. Unreadable entries are counted, not fatal; they
// simply keep no hash and fall out of the duplicate groups.
func hashChunk(mediaList []media.Media, chunk []int, zipPath string, token *checkpoint.Token,
	counter *atomic.Uint64, total uint64, report Reporter) ([]indexedHash, int, error) {

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, len(chunk), nil
	}
	defer r.Close()

	var hashes []indexedHash
	skipped := 0
	for _, idx := range chunk {
		if err := token.Check(); err != nil {
			return hashes, skipped, err
		}

		m := &mediaList[idx]
		if m.EntryIndex >= len(r.File) {
			skipped++
			continue
		}
		rc, err := r.File[m.EntryIndex].Open()
		if err != nil {
			skipped++
			continue
		}
		hash, err := streamHash(rc)
		rc.Close()
		if err != nil {
			skipped++
			continue
		}
		hashes = append(hashes, indexedHash{index: idx, hash: hash})

		current := counter.Add(1)
		report(current-1, total, "Hashing duplicates")
	}
	return hashes, skipped, nil
}

func streamHash(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, hashBufferSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

type groupKey struct {
	size uint64
	hash string
}

// removeDuplicates keeps, per (size, hash) group, the entry with the
// lowest (date accuracy, filename length) and swap-removes the rest.
// Best date first keeps the best-dated copy; the shorter name breaks
// ties in favor of "foo.jpg" over "foo(1).jpg".
func removeDuplicates(out *[]media.Media, mediaList []media.Media) {
	groups := make(map[groupKey][]int)
	for i, m := range mediaList {
		if m.Hash != "" {
			groups[groupKey{m.Size, m.Hash}] = append(groups[groupKey{m.Size, m.Hash}], i)
		}
	}

	var remove []int
	for _, indices := range groups {
		if len(indices) <= 1 {
			continue
		}
		sorted := append([]int(nil), indices...)
		sort.Slice(sorted, func(a, b int) bool {
			ma, mb := mediaList[sorted[a]], mediaList[sorted[b]]
			if ma.DateAccuracy != mb.DateAccuracy {
				return ma.DateAccuracy < mb.DateAccuracy
			}
			return len(ma.Filename) < len(mb.Filename)
		})
		remove = append(remove, sorted[1:]...)
	}

	sort.Ints(remove)
	for i := len(remove) - 1; i >= 0; i-- {
		idx := remove[i]
		last := len(mediaList) - 1
		mediaList[idx] = mediaList[last]
		mediaList = mediaList[:last]
	}
	*out = mediaList
}

// splitChunks divides work as evenly as possible across up to n chunks.
func splitChunks(indices []int, n int) [][]int {
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
