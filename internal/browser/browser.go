package browser

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/omero-biomero/tusgate/internal/model"
	"github.com/omero-biomero/tusgate/pkg"
)

var (
	ErrOutsideRoot = errors.New("path escapes the owner directory")
	ErrNotExist    = errors.New("directory does not exist")
	ErrNotDir      = errors.New("path is not a directory")
)

// Browser lists finalized uploads below DestinationDir/user_<owner>.
type Browser struct {
	root string
}

func New(destinationDir string) *Browser {
	return &Browser{root: destinationDir}
}

// OwnerRoot is the directory an owner's uploads are finalized into.
func (b *Browser) OwnerRoot(ownerID string) string {
	return filepath.Join(b.root, model.OwnerDir(ownerID))
}

// Resolve maps rel to an absolute path inside the owner's directory.
func (b *Browser) Resolve(ownerID, rel string) (string, error) {
	full, ok := pkg.JoinUnder(b.OwnerRoot(ownerID), rel)
	if !ok {
		return "", ErrOutsideRoot
	}
	return full, nil
}

// List returns the folders and files of rel, each sorted by name ignoring
// case. Paths in the result are relative to the owner's directory. A missing
// owner directory lists as empty.
func (b *Browser) List(ownerID, rel string) (*model.DirListing, error) {
	dir, err := b.Resolve(ownerID, rel)
	if err != nil {
		return nil, err
	}
	listing := &model.DirListing{Dirs: []model.FileInfoResult{}, Files: []model.FileInfoResult{}}

	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if dir == b.OwnerRoot(ownerID) {
				return listing, nil
			}
			return nil, ErrNotExist
		}
		return nil, err
	}
	if !stat.IsDir() {
		return nil, ErrNotDir
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	root := b.OwnerRoot(ownerID)
	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())
		relPath, err := filepath.Rel(root, full)
		if err != nil {
			continue
		}
		item := model.FileInfoResult{Name: entry.Name(), Path: filepath.ToSlash(relPath)}
		if entry.IsDir() {
			listing.Dirs = append(listing.Dirs, item)
			continue
		}
		if info, err := entry.Info(); err == nil {
			item.Size = info.Size()
			item.ModTime = info.ModTime().Unix()
		}
		listing.Files = append(listing.Files, item)
	}
	sortByName(listing.Dirs)
	sortByName(listing.Files)
	return listing, nil
}

func sortByName(items []model.FileInfoResult) {
	sort.Slice(items, func(i, j int) bool {
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
}
