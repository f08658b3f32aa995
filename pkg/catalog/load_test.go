package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	doc := `
zeta:
  label: Zeta
  children:
    second: Second Page
    first:
      label: First Page
      chart:
        type: pie
        y_values: NA
alpha:
  label: Alpha
  children:
    only: Only
`
	cat, err := Parse([]byte(doc))
	require.NoError(t, err)

	require.Len(t, cat.Sections, 2)
	assert.Equal(t, "zeta", cat.Sections[0].Key)
	assert.Equal(t, "alpha", cat.Sections[1].Key)

	zeta := cat.Sections[0]
	require.Len(t, zeta.Children, 2)
	assert.Equal(t, "second", zeta.Children[0].Key)
	assert.Equal(t, "Second Page", zeta.Children[0].Label)
	assert.Nil(t, zeta.Children[0].Chart)

	first := zeta.Children[1]
	require.NotNil(t, first.Chart)
	assert.Equal(t, ChartPie, first.Chart.Type)
	assert.Empty(t, first.Chart.YValues)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "empty document",
			doc:     "",
			wantErr: "no sections",
		},
		{
			name:    "not a mapping",
			doc:     "- a\n- b\n",
			wantErr: "expected a mapping",
		},
		{
			name:    "too deep",
			doc:     "a:\n  label: A\n  children:\n    b:\n      label: B\n      children:\n        c:\n          label: C\n          children:\n            d: D\n",
			wantErr: "nested deeper than 3 levels",
		},
		{
			name:    "invalid key",
			doc:     "a:\n  label: A\n  children:\n    bad-key: Bad\n",
			wantErr: `invalid key "bad-key"`,
		},
		{
			name:    "missing label",
			doc:     "a:\n  children:\n    x: X\n",
			wantErr: "a: missing label",
		},
		{
			name:    "chart on section",
			doc:     "a:\n  label: A\n  chart:\n    type: bar\n  children:\n    x: X\n",
			wantErr: "chart hint on a non-page node",
		},
		{
			name:    "unknown chart type",
			doc:     "a:\n  label: A\n  children:\n    x:\n      label: X\n      chart:\n        type: radar\n",
			wantErr: `unknown chart type "radar"`,
		},
		{
			name:    "bad y values",
			doc:     "a:\n  label: A\n  children:\n    x:\n      label: X\n      chart:\n        type: bar\n        y_values: nope\n",
			wantErr: "invalid y values",
		},
		{
			name:    "route collision",
			doc:     "a:\n  label: A\n  children:\n    Page: Upper\n    page: Lower\n",
			wantErr: "collides with",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Nil(t, cat)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	cat, err := Load(strings.NewReader("a:\n  label: A\n  children:\n    x: X\n"))
	require.NoError(t, err)
	assert.Len(t, cat.Leaves(), 1)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, defaultCatalogYAML, 0644))

	cat, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, len(Default().Leaves()), len(cat.Leaves()))

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open catalog")
}

func TestValidate_DuplicateSiblings(t *testing.T) {
	cat := New(
		&Node{Key: "a", Label: "A", Children: []*Node{{Key: "x", Label: "X"}}},
		&Node{Key: "a", Label: "Again", Children: []*Node{{Key: "y", Label: "Y"}}},
	)

	err := Validate(cat)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Problems, `/: duplicate key "a"`)
}
