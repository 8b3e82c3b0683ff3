package tus

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	log "github.com/sjqzhang/seelog"
	"github.com/sjqzhang/tusd"
	"github.com/sjqzhang/tusd/filestore"
	"github.com/sjqzhang/tusd/uid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store is the backend tusd writes uploads through. Byte stores always live as
// <id>.bin below the upload directory, the backends differ in where the
// record goes.
type Store interface {
	tusd.DataStore
	tusd.TerminaterDataStore
	tusd.LockerDataStore
	// DeleteInfo drops the record of an upload whose byte store moved away.
	DeleteInfo(id string) error
	ListInfos() ([]tusd.FileInfo, error)
	BinPath(id string) string
}

// FileStore is tusd's filestore, records are <id>.info files next to the bytes.
type FileStore struct {
	filestore.FileStore
}

func NewFileStore(path string) *FileStore {
	return &FileStore{filestore.New(path)}
}

func (store *FileStore) BinPath(id string) string {
	return filepath.Join(store.Path, id+".bin")
}

func (store *FileStore) infoPath(id string) string {
	return filepath.Join(store.Path, id+".info")
}

// Terminate removes the byte store if present, then the record.
func (store *FileStore) Terminate(id string) error {
	if err := os.Remove(store.BinPath(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Remove(store.infoPath(id))
}

func (store *FileStore) DeleteInfo(id string) error {
	err := os.Remove(store.infoPath(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (store *FileStore) ListInfos() ([]tusd.FileInfo, error) {
	entries, err := os.ReadDir(store.Path)
	if err != nil {
		return nil, err
	}
	var infos []tusd.FileInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".info") {
			continue
		}
		info, err := store.GetInfo(strings.TrimSuffix(name, ".info"))
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

const levelDBUploadPrefix = "upload:"

// LevelDBStore keeps records in the service levelDB keyed by upload:<id>.
// Bytes and locks are handled by the embedded filestore.
type LevelDBStore struct {
	filestore.FileStore
	db *leveldb.DB
}

func NewLevelDBStore(path string, db *leveldb.DB) *LevelDBStore {
	return &LevelDBStore{FileStore: filestore.New(path), db: db}
}

func (store *LevelDBStore) BinPath(id string) string {
	return filepath.Join(store.Path, id+".bin")
}

func levelDBKey(id string) []byte {
	return []byte(levelDBUploadPrefix + id)
}

func (store *LevelDBStore) NewUpload(info tusd.FileInfo) (string, error) {
	id := uid.Uid()
	info.ID = id

	file, err := os.OpenFile(store.BinPath(id), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0664)
	if err != nil {
		if os.IsNotExist(err) {
			err = fmt.Errorf("upload directory does not exist: %s", store.Path)
		}
		return "", err
	}
	file.Close()

	data, err := json.Marshal(info)
	if err == nil {
		err = store.db.Put(levelDBKey(id), data, nil)
	}
	if err != nil {
		os.Remove(store.BinPath(id))
		return "", err
	}
	return id, nil
}

func (store *LevelDBStore) GetInfo(id string) (tusd.FileInfo, error) {
	info := tusd.FileInfo{}
	data, err := store.db.Get(levelDBKey(id), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return info, tusd.ErrNotFound
		}
		return info, err
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("decode record %s: %w", id, err)
	}
	stat, err := os.Stat(store.BinPath(id))
	if err != nil {
		return info, err
	}
	info.Offset = stat.Size()
	return info, nil
}

func (store *LevelDBStore) Terminate(id string) error {
	has, err := store.db.Has(levelDBKey(id), nil)
	if err != nil {
		return err
	}
	if !has {
		return tusd.ErrNotFound
	}
	if err := os.Remove(store.BinPath(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return store.db.Delete(levelDBKey(id), nil)
}

func (store *LevelDBStore) DeleteInfo(id string) error {
	return store.db.Delete(levelDBKey(id), nil)
}

func (store *LevelDBStore) ListInfos() ([]tusd.FileInfo, error) {
	var infos []tusd.FileInfo
	iter := store.db.NewIterator(util.BytesPrefix([]byte(levelDBUploadPrefix)), nil)
	defer iter.Release()
	for iter.Next() {
		info := tusd.FileInfo{}
		if err := json.Unmarshal(iter.Value(), &info); err != nil {
			continue
		}
		if stat, err := os.Stat(store.BinPath(info.ID)); err == nil {
			info.Offset = stat.Size()
		}
		infos = append(infos, info)
	}
	return infos, iter.Error()
}

// UploadInfo is the typed view of one in-flight upload.
type UploadInfo struct {
	ID        string
	Length    int64
	Offset    int64
	Filename  string
	MetaData  map[string]*string
	ChunkPath string
	OwnerID   string
	// UpdatedAt is the last write to the byte store, zero when it is missing.
	UpdatedAt time.Time
}

// Complete reports whether every declared byte has been received.
func (info UploadInfo) Complete() bool {
	return info.Offset >= info.Length
}

func (handler *Handler) uploadInfo(info tusd.FileInfo) UploadInfo {
	owner, meta := splitStored(info.MetaData)
	upload := UploadInfo{
		ID:        info.ID,
		Length:    info.Size,
		Offset:    info.Offset,
		Filename:  FilenameFromMetadata(meta),
		MetaData:  meta,
		ChunkPath: handler.store.BinPath(info.ID),
		OwnerID:   owner,
	}
	if stat, err := os.Stat(upload.ChunkPath); err == nil {
		upload.UpdatedAt = stat.ModTime()
	}
	return upload
}

func (handler *Handler) getUpload(id string) (UploadInfo, error) {
	info, err := handler.store.GetInfo(id)
	if err != nil {
		if isNotFound(err) {
			return UploadInfo{}, tusd.ErrNotFound
		}
		return UploadInfo{}, err
	}
	return handler.uploadInfo(info), nil
}

// hookDataStore is the data store tusd sees. It stamps the owner on new
// uploads, syncs every chunk and moves complete uploads to their owner.
type hookDataStore struct {
	Store
	handler *Handler
}

func (store hookDataStore) NewUpload(info tusd.FileInfo) (string, error) {
	c, ok := creationFromMetaData(info.MetaData)
	if !ok {
		return "", ErrMissingPrincipal
	}
	info.MetaData = c.stored()
	id, err := store.Store.NewUpload(info)
	if err != nil {
		return "", err
	}
	info.ID = id

	upload := store.handler.uploadInfo(info)
	store.handler.stats.AddCountInt64(statCreated, 1)
	uploadsCreated.Inc()
	store.handler.logEvent("UploadCreated", upload, logrus.Fields{"filename": upload.Filename})
	return id, nil
}

// WriteChunk appends src in ChunkBufferSize pieces. A failing write drops the
// whole chunk again, a failing read keeps what arrived.
func (store hookDataStore) WriteChunk(id string, offset int64, src io.Reader) (int64, error) {
	bin := store.BinPath(id)
	body := &chunkReader{src: src, size: store.handler.config.ChunkBufferSize}

	n, err := store.Store.WriteChunk(id, offset, body)
	if err == nil || body.readErr != nil {
		if serr := syncFile(bin); serr != nil {
			err, body.readErr = serr, nil
		}
	}
	if err != nil && body.readErr == nil {
		if terr := os.Truncate(bin, offset); terr != nil {
			log.Errorf("truncate %s back to %d: %v", bin, offset, terr)
		}
		return 0, err
	}

	store.handler.stats.AddCountInt64(statBytesReceived, n)
	bytesReceived.Add(float64(n))
	if info, gerr := store.handler.getUpload(id); gerr == nil {
		store.handler.logEvent("ChunkWriteComplete", info, logrus.Fields{"bytes": n})
	}
	return n, err
}

func (store hookDataStore) Terminate(id string) error {
	upload, err := store.handler.getUpload(id)
	if err != nil {
		return err
	}
	if err := store.Store.Terminate(id); err != nil {
		return err
	}
	store.handler.stats.AddCountInt64(statTerminated, 1)
	uploadsTerminated.Inc()
	store.handler.logEvent("UploadTerminated", upload, nil)
	return nil
}

func (store hookDataStore) FinishUpload(id string) error {
	upload, err := store.handler.getUpload(id)
	if err != nil {
		return err
	}
	if _, err := store.handler.finalize(upload); err != nil {
		log.Errorf("finalize upload %s: %v", id, err)
		return err
	}
	return nil
}

// chunkReader streams a request body through a fixed buffer and remembers
// whether a failure came from the body or from the byte store.
type chunkReader struct {
	src     io.Reader
	size    int
	readErr error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if err != nil && err != io.EOF {
		r.readErr = err
	}
	return n, err
}

func (r *chunkReader) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, r.size)
	var written int64
	for {
		n, err := r.src.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			written += int64(m)
			if werr == nil && m != n {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return written, werr
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			r.readErr = err
			return written, err
		}
	}
}

func syncFile(path string) error {
	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	err = file.Sync()
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	return err
}
