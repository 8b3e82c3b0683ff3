package mappings

import (
	"fmt"
	"os"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/radovskyb/watcher"
	log "github.com/sjqzhang/seelog"

	"github.com/omero-biomero/tusgate/pkg"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store keeps the OMERO group to folder mappings in a JSON file and mirrors
// external edits of that file.
type Store struct {
	file     string
	mu       sync.RWMutex
	mappings map[string]interface{}
	w        *watcher.Watcher
}

// NewStore loads file, a missing file means no mappings.
func NewStore(file string) (*Store, error) {
	s := &Store{file: file, mappings: map[string]interface{}{}}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Load() error {
	data, err := os.ReadFile(s.file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	m := map[string]interface{}{}
	if len(data) != 0 {
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("decode %s: %w", s.file, err)
		}
	}
	s.mu.Lock()
	s.mappings = m
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the current mappings.
func (s *Store) Get() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := make(map[string]interface{}, len(s.mappings))
	for k, v := range s.mappings {
		m[k] = v
	}
	return m
}

// Save replaces the mappings and writes them with a two space indent.
func (s *Store) Save(m map[string]interface{}) error {
	if m == nil {
		m = map[string]interface{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.file, data, 0664); err != nil {
		return err
	}
	s.mappings = m
	return nil
}

// Watch reloads the mappings whenever the file is written by someone else.
func (s *Store) Watch(interval time.Duration) error {
	if !pkg.FileExists(s.file) {
		if err := s.Save(s.Get()); err != nil {
			return err
		}
	}
	s.w = watcher.New()
	s.w.SetMaxEvents(1)
	s.w.FilterOps(watcher.Write, watcher.Create)
	if err := s.w.Add(s.file); err != nil {
		return err
	}
	go func() {
		for {
			select {
			case event := <-s.w.Event:
				if err := s.Load(); err != nil {
					log.Error(err)
					continue
				}
				log.Info(fmt.Sprintf("group mappings reloaded op:%s path:%s", event.Op.String(), event.Path))
			case err := <-s.w.Error:
				log.Error(err)
			case <-s.w.Closed:
				return
			}
		}
	}()
	go func() {
		if err := s.w.Start(interval); err != nil {
			log.Error(err)
		}
	}()
	return nil
}

func (s *Store) Close() {
	if s.w != nil {
		s.w.Close()
	}
}
