package tus

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
	log "github.com/sjqzhang/seelog"

	"github.com/omero-biomero/tusgate/internal/model"
	"github.com/omero-biomero/tusgate/pkg"
)

const (
	DuplicateProceed = "proceed"
	DuplicateFail    = "fail"
)

// FinalizedUpload is handed to Config.OnFinalized after the bytes moved.
type FinalizedUpload struct {
	Info UploadInfo
	Path string
}

// candidateName returns name for attempt 0 and name_<i>.ext after that.
func candidateName(name string, i int) string {
	if i == 0 {
		return name
	}
	base, ext := pkg.SplitExt(name)
	return base + "_" + strconv.Itoa(i) + ext
}

// place moves src into dir under the first free candidate of name. A name is
// claimed by creating it, so two uploads finishing together never share one.
// When every candidate is taken the last one comes back with
// ErrDuplicatesExhausted and src stays where it is.
func (handler *Handler) place(src, dir, name string) (string, error) {
	var target string
	for i := 0; i <= handler.config.MaxDuplicateAttempts; i++ {
		target = filepath.Join(dir, candidateName(name, i))
		err := handler.claim(src, target)
		if err == nil {
			return target, nil
		}
		if !os.IsExist(err) {
			return "", err
		}
	}
	return target, ErrDuplicatesExhausted
}

// claim moves src to dst unless dst exists. Where no hard link is possible,
// e.g. across volumes, src is copied into an exclusively created dst.
func (handler *Handler) claim(src, dst string) error {
	err := handler.link(src, dst)
	if err == nil {
		removeSource(src, dst)
		return nil
	}
	if os.IsExist(err) || os.IsNotExist(err) {
		return err
	}
	return copyFile(src, dst, os.O_CREATE|os.O_EXCL)
}

// replace overwrites dst with src.
func (handler *Handler) replace(src, dst string) error {
	err := handler.rename(src, dst)
	if err == nil || os.IsNotExist(err) {
		return err
	}
	return copyFile(src, dst, os.O_CREATE|os.O_TRUNC)
}

// copyFile copies src into dst opened with flag. dst is synced and closed
// before src goes away, a failed copy removes dst again.
func copyFile(src, dst string, flag int) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|flag, 0664)
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, in); err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dst)
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	removeSource(src, dst)
	return nil
}

func removeSource(src, dst string) {
	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		log.Warnf("remove %s after moving it to %s: %v", src, dst, err)
	}
}

// finalize moves a complete byte store into the owner's destination directory
// and drops the record. On failure record and byte store stay in place.
func (handler *Handler) finalize(info UploadInfo) (string, error) {
	if info.OwnerID != "" && !model.ValidOwnerID(info.OwnerID) {
		return "", ErrInvalidOwner
	}
	ownerDir := filepath.Join(handler.config.DestinationDir, model.OwnerDir(info.OwnerID))
	if err := pkg.CreateDirectories(ownerDir, 0775); err != nil {
		return "", err
	}

	target, err := handler.place(info.ChunkPath, ownerDir, info.Filename)
	if errors.Is(err, ErrDuplicatesExhausted) {
		log.Warnf("no free name for %s in %s after %d attempts, policy %s",
			info.Filename, ownerDir, handler.config.MaxDuplicateAttempts, handler.config.DuplicatePolicy)
		if handler.config.DuplicatePolicy == DuplicateFail {
			return "", err
		}
		err = handler.replace(info.ChunkPath, target)
	}
	if err != nil {
		return "", err
	}

	if err := handler.store.DeleteInfo(info.ID); err != nil {
		log.Errorf("delete record of finalized upload %s: %v", info.ID, err)
	}

	handler.stats.AddCountInt64(statFinished, 1)
	handler.stats.AddCountInt64(statFinishedBytes, info.Length)
	uploadsFinished.Inc()
	handler.logEvent("UploadFinished", info, logrus.Fields{"path": target})

	if handler.config.OnFinalized != nil {
		handler.config.OnFinalized(FinalizedUpload{Info: info, Path: target})
	}
	return target, nil
}
