package pkg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinUnder(t *testing.T) {
	root := filepath.Join(os.TempDir(), "dest", "user_1")
	tests := []struct {
		name   string
		rel    string
		inside bool
	}{
		{"root itself", "", true},
		{"dot", ".", true},
		{"nested", "a/b/c.tif", true},
		{"dotdot inside", "a/../b", true},
		{"escape", "../user_2/x", false},
		{"absolute looking", "/etc/passwd", true},
		{"prefix sibling", "../user_10", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := JoinUnder(root, tt.rel)
			assert.Equal(t, tt.inside, ok)
		})
	}
}

func TestSplitExt(t *testing.T) {
	tests := []struct {
		name, base, ext string
	}{
		{"a.tif", "a", ".tif"},
		{"archive.tar.gz", "archive.tar", ".gz"},
		{"noext", "noext", ""},
		{".bashrc", ".bashrc", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, ext := SplitExt(tt.name)
			assert.Equal(t, tt.base, base)
			assert.Equal(t, tt.ext, ext)
		})
	}
}

func TestSliceToMapSet(t *testing.T) {
	exts := SliceToMapSet([]string{".TIF", " .lif ", ""}, true)
	assert.True(t, exts.Contains(".tif"))
	assert.True(t, exts.Contains(".lif"))
	assert.Equal(t, 2, exts.Cardinality())

	groups := SliceToMapSet([]string{"Lab", "lab"}, false)
	assert.Equal(t, 2, groups.Cardinality())
	assert.Contains(t, []string{"Lab,lab", "lab,Lab"}, MapSetToStr(groups, ","))
}

func TestCreateDirectories(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, CreateDirectories(filepath.Join(dir, "a", "b"), 0775))
	assert.True(t, DirExists(filepath.Join(dir, "a", "b")))

	file := filepath.Join(dir, "plain")
	assert.True(t, WriteFile(file, "x"))
	assert.Error(t, CreateDirectories(file, 0775))
}

func TestAllowOrigin(t *testing.T) {
	allow, ok := AllowOrigin(SliceToMapSet(nil, true), "https://evil.example")
	assert.True(t, ok)
	assert.Equal(t, "*", allow)

	allowed := SliceToMapSet([]string{"https://OMERO.example"}, true)
	allow, ok = AllowOrigin(allowed, "https://omero.example")
	assert.True(t, ok)
	assert.Equal(t, "https://omero.example", allow)

	_, ok = AllowOrigin(allowed, "https://evil.example")
	assert.False(t, ok)
}
