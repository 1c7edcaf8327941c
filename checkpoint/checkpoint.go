// Package checkpoint persists pipeline progress into the output
// directory so an interrupted run can resume without redoing work.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Version is the current checkpoint file format version.
const Version = 1

// Filename of the checkpoint inside the output directory. The temp
// name is rename-replaced over it so a crash never leaves a partial
// checkpoint behind.
const (
	Filename    = ".progress"
	tmpFilename = ".progress.tmp"
)

// WrittenFile records one file successfully written to the output.
type WrittenFile struct {
	ZipPath    string `json:"zip_path"`
	OutputPath string `json:"output_path"`
	Size       uint64 `json:"size"`
}

// Checkpoint is the durable progress record.
type Checkpoint struct {
	Version      int           `json:"version"`
	Timestamp    time.Time     `json:"timestamp"`
	OptionsHash  string        `json:"options_hash"`
	ZipFiles     []string      `json:"zip_files"`
	ZipMtimes    []int64       `json:"zip_mtimes"`
	WrittenFiles []WrittenFile `json:"written_files"`
	LastStage    string        `json:"last_stage"`
	Completed    bool          `json:"completed"`
}

// LayoutOptions is the subset of run options that affects the output
// layout. Two runs are resume-compatible only when these match.
type LayoutOptions struct {
	DivideToDates bool
	SkipExtras    bool
	NoGuess       bool
	Albums        bool
	AlbumDest     string
	AlbumLink     bool
	Output        string
}

// Hash returns a hex SHA-256 over the layout-affecting options.
func (o LayoutOptions) Hash() string {
	h := sha256.New()
	for _, b := range []bool{o.DivideToDates, o.SkipExtras, o.NoGuess, o.Albums} {
		if b {
			h.Write([]byte("1"))
		} else {
			h.Write([]byte("0"))
		}
	}
	h.Write([]byte(o.AlbumDest))
	if o.AlbumLink {
		h.Write([]byte("1"))
	} else {
		h.Write([]byte("0"))
	}
	h.Write([]byte(o.Output))
	return hex.EncodeToString(h.Sum(nil))
}

// New creates a fresh checkpoint for the given layout and inputs.
func New(layout LayoutOptions, zipFiles []string) (*Checkpoint, error) {
	mtimes, err := zipMtimes(zipFiles)
	if err != nil {
		return nil, err
	}
	return &Checkpoint{
		Version:     Version,
		Timestamp:   time.Now().UTC(),
		OptionsHash: layout.Hash(),
		ZipFiles:    append([]string(nil), zipFiles...),
		ZipMtimes:   mtimes,
	}, nil
}

// Load reads the checkpoint from the output directory. A missing file
// is not an error; it returns (nil, nil).
func Load(outputDir string) (*Checkpoint, error) {
	data, err := os.ReadFile(filepath.Join(outputDir, Filename))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parsing checkpoint: %w", err)
	}
	return &cp, nil
}

// Save writes the checkpoint atomically: temp file first, then rename.
func (c *Checkpoint) Save(outputDir string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}

	tmp := filepath.Join(outputDir, tmpFilename)
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(outputDir, Filename)); err != nil {
		return fmt.Errorf("replacing checkpoint: %w", err)
	}
	return nil
}

// Delete removes the checkpoint file if present.
func Delete(outputDir string) error {
	err := os.Remove(filepath.Join(outputDir, Filename))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsCompatible reports whether this checkpoint may seed a resumed run
// with the given layout and inputs.
func (c *Checkpoint) IsCompatible(layout LayoutOptions, zipFiles []string) (bool, error) {
	if c.Version != Version || c.Completed {
		return false, nil
	}
	if c.OptionsHash != layout.Hash() {
		return false, nil
	}
	if len(c.ZipFiles) != len(zipFiles) {
		return false, nil
	}
	for i, f := range zipFiles {
		if c.ZipFiles[i] != f {
			return false, nil
		}
	}

	mtimes, err := zipMtimes(zipFiles)
	if err != nil {
		return false, err
	}
	for i, mt := range mtimes {
		if c.ZipMtimes[i] != mt {
			return false, nil
		}
	}
	return true, nil
}

// MarkWritten records a successfully written file.
func (c *Checkpoint) MarkWritten(zipPath, outputPath string, size uint64) {
	c.WrittenFiles = append(c.WrittenFiles, WrittenFile{
		ZipPath:    zipPath,
		OutputPath: outputPath,
		Size:       size,
	})
	c.Timestamp = time.Now().UTC()
}

// WrittenMap returns zip path → output path for already written files.
func (c *Checkpoint) WrittenMap() map[string]string {
	m := make(map[string]string, len(c.WrittenFiles))
	for _, f := range c.WrittenFiles {
		m[f.ZipPath] = f.OutputPath
	}
	return m
}

// SetStage updates the last-stage marker.
func (c *Checkpoint) SetStage(stage string) {
	c.LastStage = stage
	c.Timestamp = time.Now().UTC()
}

// MarkCompleted flags the run as finished.
func (c *Checkpoint) MarkCompleted() {
	c.Completed = true
	c.Timestamp = time.Now().UTC()
}

func zipMtimes(zipFiles []string) ([]int64, error) {
	mtimes := make([]int64, 0, len(zipFiles))
	for _, path := range zipFiles {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		mtimes = append(mtimes, info.ModTime().Unix())
	}
	return mtimes, nil
}
