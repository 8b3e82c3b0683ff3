package pkg

import (
	"os/user"
	"path/filepath"
	"strings"
)

// ExpandFilename returns the absolute path of filename, "~" is replaced with home directory
func ExpandFilename(filename string) string {
	if filename == "" {
		return ""
	}

	if len(filename) > 2 && filename[:2] == "~/" {
		if usr, err := user.Current(); err == nil {
			filename = filepath.Join(usr.HomeDir, filename[2:])
		}
	}

	result, err := filepath.Abs(filename)
	if err != nil {
		panic(err)
	}

	return result
}

// JoinUnder joins rel onto root and reports whether the cleaned result stays inside root.
func JoinUnder(root, rel string) (string, bool) {
	root = filepath.Clean(root)
	full := filepath.Join(root, filepath.FromSlash(rel))
	if full == root {
		return full, true
	}
	return full, strings.HasPrefix(full, root+string(filepath.Separator))
}

// SplitExt splits name into base and extension, a leading dot is kept in base
// so ".bashrc" has no extension.
func SplitExt(name string) (string, string) {
	ext := filepath.Ext(name)
	if ext == name {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}
