package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/eventials/go-tus"
	log "github.com/sjqzhang/seelog"
	"github.com/syndtr/goleveldb/leveldb"
)

// LeveldbStore remembers the upload url of every fingerprint so an
// interrupted run continues where it stopped.
type LeveldbStore struct {
	db *leveldb.DB
}

func NewLeveldbStore(path string) (*LeveldbStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LeveldbStore{db: db}, nil
}

func (s *LeveldbStore) Get(fingerprint string) (string, bool) {
	url, err := s.db.Get([]byte(fingerprint), nil)
	if err != nil {
		return "", false
	}
	return string(url), true
}

func (s *LeveldbStore) Set(fingerprint, url string) {
	if err := s.db.Put([]byte(fingerprint), []byte(url), nil); err != nil {
		log.Warnf("remember %s: %v", fingerprint, err)
	}
}

func (s *LeveldbStore) Delete(fingerprint string) {
	s.db.Delete([]byte(fingerprint), nil)
}

func (s *LeveldbStore) Close() {
	s.db.Close()
}

type Options struct {
	// URL is the creation endpoint, e.g. http://127.0.0.1:8080/upload/
	URL     string
	Dir     string
	Workers int
	// Header is sent with every request, typically the credentials.
	Header    http.Header
	ChunkSize int64
	// ResumeDB enables resuming through a LeveldbStore at this path.
	ResumeDB string
}

type Result struct {
	Path string
	URL  string
	Err  error
}

// ListFiles returns the regular files below dir in lexical order.
func ListFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	sort.Strings(paths)
	return paths, err
}

// UploadDir sends every file below opts.Dir with opts.Workers parallel
// uploads. Results keep the order of ListFiles. Stopping ctx lets running
// uploads finish their current chunk and skips the rest.
func UploadDir(ctx context.Context, opts Options) ([]Result, error) {
	files, err := ListFiles(opts.Dir)
	if err != nil {
		return nil, err
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}

	cfg := tus.DefaultConfig()
	if opts.ChunkSize > 0 {
		cfg.ChunkSize = opts.ChunkSize
	}
	for k, v := range opts.Header {
		cfg.Header[k] = v
	}
	if opts.ResumeDB != "" {
		store, err := NewLeveldbStore(opts.ResumeDB)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		cfg.Store = store
		cfg.Resume = true
	}
	client, err := tus.NewClient(opts.URL, cfg)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(files))
	queue := make(chan int, len(files))
	for i := range files {
		queue <- i
	}
	close(queue)

	var wg sync.WaitGroup
	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				results[i] = Result{Path: files[i]}
				if err := ctx.Err(); err != nil {
					results[i].Err = err
					continue
				}
				results[i].URL, results[i].Err = uploadFile(client, cfg, files[i])
			}
		}()
	}
	wg.Wait()
	return results, nil
}

func uploadFile(client *tus.Client, cfg *tus.Config, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	upload, err := tus.NewUploadFromFile(f)
	if err != nil {
		return "", err
	}
	var uploader *tus.Uploader
	if cfg.Resume {
		uploader, err = client.CreateOrResumeUpload(upload)
	} else {
		uploader, err = client.CreateUpload(upload)
	}
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if err = uploader.Upload(); err != nil {
		return uploader.Url(), err
	}
	// a finalized upload is gone on the server, resuming it would fail
	if cfg.Resume {
		cfg.Store.Delete(upload.Fingerprint)
	}
	return uploader.Url(), nil
}

// Failed counts results with an error.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

var ErrSomeFailed = errors.New("some uploads failed")
