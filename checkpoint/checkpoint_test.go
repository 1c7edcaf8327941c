package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLayout(output string) LayoutOptions {
	return LayoutOptions{
		DivideToDates: true,
		AlbumDest:     "year",
		Output:        output,
	}
}

func writeZip(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("zip bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	zip := writeZip(t, dir, "takeout-001.zip")

	cp, err := New(testLayout(dir), []string{zip})
	if err != nil {
		t.Fatal(err)
	}
	cp.MarkWritten("Photos from 2023/img.jpg", filepath.Join(dir, "2023/09/img.jpg"), 1024)
	cp.SetStage("write")

	if err := cp.Save(dir); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if loaded == nil {
		t.Fatal("Load returned nil for existing checkpoint")
	}
	if loaded.Version != Version {
		t.Errorf("Version = %d, want %d", loaded.Version, Version)
	}
	if loaded.OptionsHash != cp.OptionsHash {
		t.Errorf("OptionsHash mismatch after round-trip")
	}
	if len(loaded.WrittenFiles) != 1 || loaded.WrittenFiles[0].Size != 1024 {
		t.Errorf("WrittenFiles = %+v", loaded.WrittenFiles)
	}
	if loaded.LastStage != "write" {
		t.Errorf("LastStage = %q", loaded.LastStage)
	}
	if loaded.Completed {
		t.Error("Completed should be false")
	}
	// No stray temp file.
	if _, err := os.Stat(filepath.Join(dir, tmpFilename)); !os.IsNotExist(err) {
		t.Error("temp file left behind after Save")
	}
}

func TestLoadAbsent(t *testing.T) {
	cp, err := Load(t.TempDir())
	if err != nil || cp != nil {
		t.Errorf("Load on empty dir = (%v, %v), want (nil, nil)", cp, err)
	}
}

func TestIsCompatible(t *testing.T) {
	dir := t.TempDir()
	zip := writeZip(t, dir, "takeout-001.zip")
	layout := testLayout(dir)

	cp, err := New(layout, []string{zip})
	if err != nil {
		t.Fatal(err)
	}

	if ok, err := cp.IsCompatible(layout, []string{zip}); err != nil || !ok {
		t.Errorf("identical run not compatible: (%v, %v)", ok, err)
	}

	// Changed layout option.
	changed := layout
	changed.SkipExtras = true
	if ok, _ := cp.IsCompatible(changed, []string{zip}); ok {
		t.Error("compatible despite changed options")
	}

	// Different archive list.
	other := writeZip(t, dir, "takeout-002.zip")
	if ok, _ := cp.IsCompatible(layout, []string{other}); ok {
		t.Error("compatible despite different archives")
	}

	// Archive modified since the checkpoint was taken.
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(zip, past, past); err != nil {
		t.Fatal(err)
	}
	if ok, _ := cp.IsCompatible(layout, []string{zip}); ok {
		t.Error("compatible despite modified archive")
	}

	// Completed checkpoints never resume.
	cp2, err := New(layout, []string{zip})
	if err != nil {
		t.Fatal(err)
	}
	cp2.MarkCompleted()
	if ok, _ := cp2.IsCompatible(layout, []string{zip}); ok {
		t.Error("compatible despite completed flag")
	}
}

func TestOptionsHashCoversLayoutFields(t *testing.T) {
	base := testLayout("/out")
	variants := []LayoutOptions{
		{DivideToDates: false, AlbumDest: "year", Output: "/out"},
		{DivideToDates: true, SkipExtras: true, AlbumDest: "year", Output: "/out"},
		{DivideToDates: true, NoGuess: true, AlbumDest: "year", Output: "/out"},
		{DivideToDates: true, Albums: true, AlbumDest: "year", Output: "/out"},
		{DivideToDates: true, AlbumDest: "album", Output: "/out"},
		{DivideToDates: true, AlbumDest: "year", AlbumLink: true, Output: "/out"},
		{DivideToDates: true, AlbumDest: "year", Output: "/other"},
	}

	for i, v := range variants {
		if v.Hash() == base.Hash() {
			t.Errorf("variant %d hashes equal to base", i)
		}
	}
	if base.Hash() != testLayout("/out").Hash() {
		t.Error("hash not deterministic")
	}
}

func TestDeleteMissingIsNil(t *testing.T) {
	if err := Delete(t.TempDir()); err != nil {
		t.Errorf("Delete on missing checkpoint: %v", err)
	}
}

func TestTokenCancel(t *testing.T) {
	token := NewToken()
	if token.IsCancelled() || token.IsPaused() {
		t.Fatal("fresh token has flags set")
	}
	if err := token.Check(); err != nil {
		t.Fatalf("Check on fresh token: %v", err)
	}

	token.Cancel()
	if !token.IsCancelled() {
		t.Error("IsCancelled false after Cancel")
	}
	if err := token.Check(); err != ErrCancelled {
		t.Errorf("Check = %v, want ErrCancelled", err)
	}
}

func TestTokenPauseResume(t *testing.T) {
	token := NewToken()
	token.SetPaused(true)

	done := make(chan struct{})
	go func() {
		token.Check()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Check returned while paused")
	case <-time.After(150 * time.Millisecond):
	}

	token.SetPaused(false)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Check did not resume after unpause")
	}
}

func TestTokenCancelWhilePaused(t *testing.T) {
	token := NewToken()
	token.SetPaused(true)

	errs := make(chan error, 1)
	go func() {
		errs <- token.Check()
	}()

	token.Cancel()
	select {
	case err := <-errs:
		if err != ErrCancelled {
			t.Errorf("Check = %v, want ErrCancelled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Check did not observe cancel while paused")
	}
}

func TestSaverThrottle(t *testing.T) {
	dir := t.TempDir()
	zip := writeZip(t, dir, "takeout-001.zip")

	cp, err := New(testLayout(dir), []string{zip})
	if err != nil {
		t.Fatal(err)
	}
	saver := NewSaver(cp, dir)

	// Under both thresholds: no file yet.
	saver.MarkWritten("a.jpg", "out/a.jpg", 1)
	if _, err := os.Stat(filepath.Join(dir, Filename)); !os.IsNotExist(err) {
		t.Fatal("saver wrote below both thresholds")
	}

	// The file-count threshold forces a save.
	for i := 0; i < saveMinFiles; i++ {
		saver.MarkWritten("b.jpg", "out/b.jpg", 1)
	}
	if _, err := os.Stat(filepath.Join(dir, Filename)); err != nil {
		t.Fatalf("saver did not write after %d files: %v", saveMinFiles, err)
	}

	// ForceSave bypasses the throttle.
	if err := os.Remove(filepath.Join(dir, Filename)); err != nil {
		t.Fatal(err)
	}
	saver.ForceSave()
	if _, err := os.Stat(filepath.Join(dir, Filename)); err != nil {
		t.Fatal("ForceSave did not write")
	}

	// Completion removes the file.
	if err := saver.MarkCompleted(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, Filename)); !os.IsNotExist(err) {
		t.Error("checkpoint not deleted on completion")
	}
}
