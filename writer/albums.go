package writer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bleemesser/takeoutsort/media"
)

// writeAlbumFolders mirrors every album member into
// <output>/albums/<album>/, by copy or relative symlink. Collisions are
// resolved per album with the same counter scheme as the main tree.
func writeAlbumFolders(mediaList []media.Media, assignments []string, opts Options, res *Result) error {
	albumsDir := filepath.Join(opts.OutputDir, "albums")

	counters := make(map[string]int)
	used := make(map[string]bool)
	count := 0

	for i := range mediaList {
		m := &mediaList[i]
		dest := assignments[i]
		if dest == "" {
			continue
		}
		for _, albumName := range m.Albums {
			albumDir := filepath.Join(albumsDir, albumName)
			if err := os.MkdirAll(albumDir, 0755); err != nil {
				return fmt.Errorf("creating album directory: %w", err)
			}

			albumFile := filepath.Join(albumDir, m.Filename)
			if used[albumFile] || fileExists(albumFile) {
				stem := strings.TrimSuffix(m.Filename, filepath.Ext(m.Filename))
				ext := filepath.Ext(m.Filename)
				counter := counters[albumFile]
				for {
					counter++
					candidate := filepath.Join(albumDir, fmt.Sprintf("%s(%d)%s", stem, counter, ext))
					if !used[candidate] && !fileExists(candidate) {
						counters[albumFile] = counter
						albumFile = candidate
						break
					}
				}
			}
			used[albumFile] = true

			if opts.AlbumLink {
				// Relative links are computed against the album directory
				// so the output tree stays relocatable.
				rel, err := filepath.Rel(albumDir, dest)
				if err != nil {
					rel = dest
				}
				if err := os.Symlink(rel, albumFile); err != nil {
					return fmt.Errorf("linking %s: %w", albumFile, err)
				}
			} else {
				if err := copyFile(dest, albumFile); err != nil {
					return fmt.Errorf("copying into album: %w", err)
				}
			}
			count++
		}
	}

	if count > 0 {
		logrus.WithField("count", count).Info("wrote album files")
	}
	return nil
}

// albumsJSON is the document written to albums.json.
type albumsJSON struct {
	Albums map[string]albumInfo `json:"albums"`
}

type albumInfo struct {
	Files []albumFile `json:"files"`
}

type albumFile struct {
	Filename   string `json:"filename"`
	OutputPath string `json:"output_path"`
}

// WriteAlbumsJSON emits the album manifest with paths relative to the
// output root, forward slashes on every host. Album names are sorted
// for stable output.
func WriteAlbumsJSON(mediaList []media.Media, assignments []string, outputDir, jsonPath string) error {
	albums := make(map[string][]albumFile)
	for i := range mediaList {
		m := &mediaList[i]
		if assignments[i] == "" {
			continue
		}
		rel, err := filepath.Rel(outputDir, assignments[i])
		if err != nil {
			rel = assignments[i]
		}
		rel = filepath.ToSlash(rel)
		for _, albumName := range m.Albums {
			albums[albumName] = append(albums[albumName], albumFile{
				Filename:   m.Filename,
				OutputPath: rel,
			})
		}
	}

	// encoding/json emits map keys sorted, so album order is stable.
	doc := albumsJSON{Albums: make(map[string]albumInfo, len(albums))}
	for name, files := range albums {
		doc.Albums[name] = albumInfo{Files: files}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding albums.json: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return fmt.Errorf("writing albums.json: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func copyFile(src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destination.Close()

	if _, err := io.Copy(destination, source); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}
