package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const watchedCatalog = `
fundo:
  label: Fundo
cotas:
  label: Cotas
  children:
    cotas:
      label: Cotas
`

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watchedCatalog), 0o644))

	changes := make(chan *Catalog, 4)
	errs := make(chan error, 4)
	w, err := Watch(path, 20*time.Millisecond, func(c *Catalog) { changes <- c }, func(err error) { errs <- err })
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	// unrelated files in the directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	updated := watchedCatalog + "calendario:\n  label: Calendário\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	// a read racing the write may see a partial file; wait for the final one
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if len(c.Sections) != 3 {
				continue
			}
			assert.Equal(t, "calendario", c.Sections[2].Key)
			return
		case <-errs:
		case <-timeout:
			t.Fatal("catalog change was not observed")
		}
	}
}

func TestWatcher_InvalidFileReportsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watchedCatalog), 0o644))

	changes := make(chan *Catalog, 4)
	errs := make(chan error, 4)
	w, err := Watch(path, 20*time.Millisecond, func(c *Catalog) { changes <- c }, func(err error) { errs <- err })
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.NoError(t, os.WriteFile(path, []byte("bad key!:\n  label: x\n"), 0o644))

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-changes:
		t.Fatal("invalid catalog must not be delivered")
	case <-time.After(5 * time.Second):
		t.Fatal("load error was not reported")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	_, err := Watch(filepath.Join(t.TempDir(), "missing", "catalog.yaml"), time.Millisecond, func(*Catalog) {}, nil)
	assert.Error(t, err)
}
