package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"ArchiveExtractor/internal/domain"
)

var unsafeProjectChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ArtifactStore writes downloaded payloads under <dir>/<project>/<timestamp>_<filename>.
type ArtifactStore struct {
	dir     string
	project string
	now     func() time.Time
}

// NewArtifactStore builds a store rooted at dir; an empty project becomes "default".
func NewArtifactStore(dir, project string) *ArtifactStore {
	project = strings.Trim(unsafeProjectChars.ReplaceAllString(project, "_"), "_")
	if project == "" {
		project = "default"
	}
	return &ArtifactStore{dir: dir, project: project, now: time.Now}
}

// Save writes data and returns the written path.
func (s *ArtifactStore) Save(filename string, data []byte) (string, error) {
	base := filepath.Base(filepath.Clean("/" + filename))
	if base == "/" || base == "." {
		return "", fmt.Errorf("invalid artifact name %q", filename)
	}
	dir := filepath.Join(s.dir, s.project)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	path := filepath.Join(dir, s.now().Format("20060102_150405")+"_"+base)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}

// SaveResult writes every binary payload of a success and returns the paths. The primary image
// is skipped when it is also listed among the files.
func (s *ArtifactStore) SaveResult(result domain.ExtractionResult) ([]string, error) {
	if result.Success == nil {
		return nil, nil
	}
	files := append([]domain.BinaryFile(nil), result.Success.Files...)
	if img := result.Success.Image; img != nil && !containsFile(files, img.Filename) {
		files = append([]domain.BinaryFile{*img}, files...)
	}

	var paths []string
	for _, f := range files {
		if f.Size() == 0 {
			continue
		}
		path, err := s.Save(f.Filename, f.Data)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func containsFile(files []domain.BinaryFile, name string) bool {
	for _, f := range files {
		if f.Filename == name {
			return true
		}
	}
	return false
}
