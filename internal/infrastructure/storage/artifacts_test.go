package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArchiveExtractor/internal/domain"
)

func TestArtifactStoreSave(t *testing.T) {
	dir := t.TempDir()
	store := NewArtifactStore(dir, "Rivera research/2024")
	store.now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }

	path, err := store.Save("../clipping.png", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Rivera_research_2024", "20240501_093000_clipping.png"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)

	_, err = store.Save("", []byte("x"))
	assert.Error(t, err)
}

func TestArtifactStoreSaveResult(t *testing.T) {
	store := NewArtifactStore(t.TempDir(), "")
	img := domain.BinaryFile{Filename: "page.jpg", Data: []byte("jpg")}
	result := domain.Succeeded("https://a.example/1", domain.SourceNewspaperArchive, domain.Success{
		Image: &img,
		Files: []domain.BinaryFile{img, {Filename: "page_2.pdf", Data: []byte("pdf")}, {Filename: "empty.png"}},
	})

	paths, err := store.SaveResult(result)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Contains(t, paths[0], string(filepath.Separator)+"default"+string(filepath.Separator))
	assert.Equal(t, ".pdf", filepath.Ext(paths[1]))

	none, err := store.SaveResult(domain.Failed("https://a.example/2", domain.SourceLAPL, os.ErrNotExist))
	require.NoError(t, err)
	assert.Empty(t, none)
}
