package dedup

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bleemesser/takeoutsort/checkpoint"
	"github.com/bleemesser/takeoutsort/hashcache"
	"github.com/bleemesser/takeoutsort/media"
)

type zipEntry struct {
	name string
	data string
}

func buildZip(t *testing.T, dir, name string, entries []zipEntry) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for _, e := range entries {
		fw, err := w.Create(e.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(e.data)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func discard(current, total uint64, message string) {}

func mediaFor(t *testing.T, zipPath string) []media.Media {
	t.Helper()
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	var list []media.Media
	for i, f := range r.File {
		list = append(list, media.New(f.Name, 0, i, filepath.Base(f.Name), f.UncompressedSize64))
	}
	return list
}

func zipMtime(t *testing.T, zipPath string) int64 {
	t.Helper()
	info, err := os.Stat(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	return info.ModTime().Unix()
}

func TestRunKeepsBestDatedCopy(t *testing.T) {
	dir := t.TempDir()
	zipPath := buildZip(t, dir, "takeout-001.zip", []zipEntry{
		{"Photos from 2023/A.jpg", "identical bytes"},
		{"Photos from 2023/A(1).jpg", "identical bytes"},
	})

	list := mediaFor(t, zipPath)
	list[0].Date = time.Unix(1693526400, 0)
	list[0].DateAccuracy = media.AccuracyJSON
	list[1].Date = time.Unix(1693526400, 0)
	list[1].DateAccuracy = media.AccuracyGuess

	res, err := Run(list, []string{zipPath}, []int64{zipMtime(t, zipPath)}, 2, nil, checkpoint.NewToken(), discard)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Media) != 1 {
		t.Fatalf("surviving media = %d, want 1", len(res.Media))
	}
	if res.Media[0].Filename != "A.jpg" {
		t.Errorf("survivor = %q, want A.jpg", res.Media[0].Filename)
	}
	if res.Media[0].Hash == "" {
		t.Error("survivor has no hash")
	}
}

func TestRunShorterNameBreaksTies(t *testing.T) {
	dir := t.TempDir()
	zipPath := buildZip(t, dir, "takeout-001.zip", []zipEntry{
		{"Photos from 2023/foo(1).jpg", "same"},
		{"Photos from 2023/foo.jpg", "same"},
	})

	list := mediaFor(t, zipPath)

	res, err := Run(list, []string{zipPath}, []int64{zipMtime(t, zipPath)}, 1, nil, checkpoint.NewToken(), discard)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Media) != 1 || res.Media[0].Filename != "foo.jpg" {
		t.Errorf("survivors = %+v, want only foo.jpg", res.Media)
	}
}

func TestRunSizeCollisionDifferentContent(t *testing.T) {
	dir := t.TempDir()
	zipPath := buildZip(t, dir, "takeout-001.zip", []zipEntry{
		{"Photos from 2023/a.jpg", "content-one"},
		{"Photos from 2023/b.jpg", "content-two"},
		{"Photos from 2023/unique.jpg", "different length content"},
	})

	list := mediaFor(t, zipPath)

	res, err := Run(list, []string{zipPath}, []int64{zipMtime(t, zipPath)}, 2, nil, checkpoint.NewToken(), discard)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Media) != 3 {
		t.Fatalf("media count = %d, want 3", len(res.Media))
	}

	byName := make(map[string]media.Media)
	for _, m := range res.Media {
		byName[m.Filename] = m
	}
	// Size collisions got hashes; the singleton did not.
	if byName["a.jpg"].Hash == "" || byName["b.jpg"].Hash == "" {
		t.Error("size-colliding entries missing hashes")
	}
	if byName["a.jpg"].Hash == byName["b.jpg"].Hash {
		t.Error("different content produced equal hashes")
	}
	if byName["unique.jpg"].Hash != "" {
		t.Error("singleton was hashed")
	}
}

func TestRunUsesHashCache(t *testing.T) {
	dir := t.TempDir()
	zipPath := buildZip(t, dir, "takeout-001.zip", []zipEntry{
		{"Photos from 2023/a.jpg", "same bytes"},
		{"Photos from 2023/b.jpg", "same bytes"},
	})
	mtime := zipMtime(t, zipPath)

	cache, err := hashcache.Open(filepath.Join(dir, "hashes.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	first, err := Run(mediaFor(t, zipPath), []string{zipPath}, []int64{mtime}, 1, cache, checkpoint.NewToken(), discard)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Media) != 1 {
		t.Fatalf("first run survivors = %d", len(first.Media))
	}

	// Corrupt the archive; the cached hashes must carry the second run
	// without touching it (same recorded mtime).
	if err := os.WriteFile(zipPath, []byte("no longer a zip"), 0644); err != nil {
		t.Fatal(err)
	}

	second, err := Run(mediaFor2(t), []string{zipPath}, []int64{mtime}, 1, cache, checkpoint.NewToken(), discard)
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Media) != 1 {
		t.Errorf("second run survivors = %d, want 1 (cache hit)", len(second.Media))
	}
	if len(second.Warnings) != 0 {
		t.Errorf("second run warnings = %v, want none", second.Warnings)
	}
}

// mediaFor2 rebuilds the media list for the corrupted-archive run in
// TestRunUsesHashCache without reopening the (now invalid) zip.
func mediaFor2(t *testing.T) []media.Media {
	t.Helper()
	size := uint64(len("same bytes"))
	return []media.Media{
		media.New("Photos from 2023/a.jpg", 0, 0, "a.jpg", size),
		media.New("Photos from 2023/b.jpg", 0, 1, "b.jpg", size),
	}
}

func TestRunUnreadableArchiveWarns(t *testing.T) {
	dir := t.TempDir()
	bogus := filepath.Join(dir, "bogus.zip")
	if err := os.WriteFile(bogus, []byte("not a zip"), 0644); err != nil {
		t.Fatal(err)
	}

	list := []media.Media{
		media.New("Photos from 2023/a.jpg", 0, 0, "a.jpg", 4),
		media.New("Photos from 2023/b.jpg", 0, 1, "b.jpg", 4),
	}

	res, err := Run(list, []string{bogus}, []int64{0}, 1, nil, checkpoint.NewToken(), discard)
	if err != nil {
		t.Fatal(err)
	}
	// Nothing hashable: both entries stay, with a warning.
	if len(res.Media) != 2 {
		t.Errorf("media count = %d, want 2", len(res.Media))
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a warning for the unreadable archive")
	}
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	zipPath := buildZip(t, dir, "takeout-001.zip", []zipEntry{
		{"Photos from 2023/a.jpg", "same"},
		{"Photos from 2023/b.jpg", "same"},
	})

	token := checkpoint.NewToken()
	token.Cancel()

	_, err := Run(mediaFor(t, zipPath), []string{zipPath}, []int64{0}, 1, nil, token, discard)
	if err != checkpoint.ErrCancelled {
		t.Errorf("err = %v, want ErrCancelled", err)
	}
}
