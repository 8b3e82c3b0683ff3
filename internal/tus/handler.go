package tus

import (
	"errors"
	stdlog "log"
	"net"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"

	mapSet "github.com/deckarep/golang-set"
	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/sirupsen/logrus"
	"github.com/sjqzhang/goutil"
	log "github.com/sjqzhang/seelog"
	"github.com/sjqzhang/tusd"

	"github.com/omero-biomero/tusgate/internal/auth"
	"github.com/omero-biomero/tusgate/internal/logger"
	"github.com/omero-biomero/tusgate/internal/model"
	"github.com/omero-biomero/tusgate/pkg"
)

const (
	TusVersion    = "1.0.0"
	TusExtensions = "creation,termination"

	defaultBufferSize = 1 << 20
	offsetContentType = "application/offset+octet-stream"
)

// reUploadID matches the ids handed out by tusd's uid package.
var reUploadID = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Config tunes a Handler. Store and DestinationDir are required.
type Config struct {
	BasePath        string
	Store           Store
	UploadDir       string
	DestinationDir  string
	MaxSize         int64
	ChunkBufferSize int
	// Extensions is an allow-list of lower case file extensions, empty allows all.
	Extensions           []string
	DuplicatePolicy      string
	MaxDuplicateAttempts int
	// AllowUnownedUploads lets any authenticated principal use records
	// without an owner, as written by older deployments.
	AllowUnownedUploads     bool
	RequireTusResumable     bool
	RespectForwardedHeaders bool
	CheckFreeSpace          bool
	// CrossOrigin adds CORS headers for the origins in AllowedOrigins, or for
	// any origin when it is empty. Credentials are never allowed.
	CrossOrigin    bool
	AllowedOrigins []string
	// DiskFree reports free bytes below path, gopsutil when nil.
	DiskFree    func(path string) (uint64, error)
	OnFinalized func(FinalizedUpload)
}

// Handler serves the tus 1.0.0 core protocol with the creation and
// termination extensions. tusd does the protocol work, Handler adds
// authentication, ownership and the move into the destination tree.
type Handler struct {
	config     Config
	store      Store
	locker     *Locker
	tusd       *tusd.UnroutedHandler
	extensions mapSet.Set
	origins    mapSet.Set
	stats      *goutil.CommonMap

	link   func(oldname, newname string) error
	rename func(oldpath, newpath string) error
}

func NewHandler(config Config) (*Handler, error) {
	if config.Store == nil {
		return nil, errors.New("tus: Store must not be nil")
	}
	if config.DestinationDir == "" {
		return nil, errors.New("tus: DestinationDir must not be empty")
	}
	if config.BasePath == "" {
		config.BasePath = "/upload/"
	}
	if !strings.HasSuffix(config.BasePath, "/") {
		config.BasePath += "/"
	}
	if config.ChunkBufferSize <= 0 {
		config.ChunkBufferSize = defaultBufferSize
	}
	if config.MaxDuplicateAttempts <= 0 {
		config.MaxDuplicateAttempts = 1000
	}
	if config.DuplicatePolicy == "" {
		config.DuplicatePolicy = DuplicateProceed
	}
	if config.DiskFree == nil {
		config.DiskFree = diskFree
	}
	if config.UploadDir == "" {
		if fs, ok := config.Store.(*FileStore); ok {
			config.UploadDir = fs.Path
		}
	}

	handler := &Handler{
		config:     config,
		store:      config.Store,
		locker:     NewLocker(config.Store),
		extensions: pkg.SliceToMapSet(config.Extensions, true),
		origins:    pkg.SliceToMapSet(config.AllowedOrigins, true),
		stats:      goutil.NewCommonMap(0),
		link:       os.Link,
		rename:     os.Rename,
	}

	hook := hookDataStore{Store: config.Store, handler: handler}
	composer := tusd.NewStoreComposer()
	composer.UseCore(hook)
	composer.UseTerminater(hook)
	composer.UseFinisher(hook)
	composer.UseLocker(handler.locker)

	unrouted, err := tusd.NewUnroutedHandler(tusd.Config{
		BasePath:                config.BasePath,
		StoreComposer:           composer,
		MaxSize:                 config.MaxSize,
		RespectForwardedHeaders: config.RespectForwardedHeaders,
		Logger:                  stdlog.New(logger.Uploads.WriterLevel(logrus.DebugLevel), "[tusd] ", 0),
	})
	if err != nil {
		return nil, err
	}
	handler.tusd = unrouted
	return handler, nil
}

func diskFree(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// RegisterRoutes mounts the protocol below the configured base path.
func (handler *Handler) RegisterRoutes(router gin.IRouter) {
	group := router.Group(handler.config.BasePath, handler.Middleware)
	group.OPTIONS("", handler.Options)
	group.OPTIONS(":id", handler.Options)
	group.POST("", handler.PostFile)
	group.HEAD(":id", handler.HeadFile)
	group.PATCH(":id", handler.PatchFile)
	group.DELETE(":id", handler.DelFile)
}

// Middleware sets the headers every tus response carries.
func (handler *Handler) Middleware(ctx *gin.Context) {
	r := ctx.Request
	header := ctx.Writer.Header()

	if origin := r.Header.Get("Origin"); origin != "" && handler.config.CrossOrigin {
		if allow, ok := pkg.AllowOrigin(handler.origins, origin); ok {
			header.Set("Access-Control-Allow-Origin", allow)
			if allow != "*" {
				header.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				header.Set("Access-Control-Allow-Methods", "POST, HEAD, PATCH, OPTIONS, DELETE")
				header.Set("Access-Control-Allow-Headers", "Tus-Resumable, Upload-Length, Upload-Metadata, Upload-Offset, Content-Type, X-CSRFToken, X-HTTP-Method-Override, Authorization")
				header.Set("Access-Control-Max-Age", "86400")
			}
			header.Set("Access-Control-Expose-Headers", "Tus-Resumable, Upload-Offset, Upload-Length, Upload-Metadata, Location")
		}
	}

	header.Set("Tus-Resumable", TusVersion)
	header.Set("X-Content-Type-Options", "nosniff")

	if handler.config.RequireTusResumable && r.Method != http.MethodOptions &&
		r.Header.Get("Tus-Resumable") != TusVersion {
		handler.sendError(ctx, tusd.ErrUnsupportedVersion)
		return
	}
	ctx.Next()
}

// Options answers protocol discovery and CORS preflight without auth.
func (handler *Handler) Options(ctx *gin.Context) {
	header := ctx.Writer.Header()
	header.Set("Tus-Version", TusVersion)
	header.Set("Tus-Extension", TusExtensions)
	if handler.config.MaxSize > 0 {
		header.Set("Tus-Max-Size", strconv.FormatInt(handler.config.MaxSize, 10))
	}
	handler.sendResp(ctx, http.StatusNoContent)
}

// PostFile checks the principal and the upload's name, then lets tusd create
// the upload. The principal reaches the data store inside Upload-Metadata.
func (handler *Handler) PostFile(ctx *gin.Context) {
	r := ctx.Request
	principal := auth.Current(ctx)
	if principal == nil {
		handler.sendError(ctx, ErrAuthRequired)
		return
	}

	meta := ParseMetadataHeader(r.Header.Get("Upload-Metadata"))
	if hasReservedKey(meta) {
		handler.sendError(ctx, ErrReservedMetadata)
		return
	}
	if !handler.extensionAllowed(FilenameFromMetadata(meta)) {
		handler.sendError(ctx, ErrExtensionNotAllowed)
		return
	}

	if handler.config.CheckFreeSpace && handler.config.UploadDir != "" {
		length, err := strconv.ParseInt(r.Header.Get("Upload-Length"), 10, 64)
		if err == nil && length > 0 {
			free, err := handler.config.DiskFree(handler.config.UploadDir)
			if err != nil {
				log.Warnf("free space of %s unknown: %v", handler.config.UploadDir, err)
			} else if free < uint64(length) {
				handler.sendError(ctx, ErrInsufficientStorage)
				return
			}
		}
	}

	header, err := creation{OwnerID: principal.ID, MetaData: meta}.header()
	if err != nil {
		handler.sendError(ctx, err)
		return
	}
	r.Header.Set("Upload-Metadata", header)
	handler.serve(ctx, handler.tusd.PostFile)
}

// HeadFile reports the progress of an upload. It reads without the upload
// lock so clients can poll a running PATCH.
func (handler *Handler) HeadFile(ctx *gin.Context) {
	info, err := handler.lookup(ctx)
	if err != nil {
		handler.sendError(ctx, err)
		return
	}

	header := ctx.Writer.Header()
	header.Set("Cache-Control", "no-store")
	header.Set("Upload-Offset", strconv.FormatInt(info.Offset, 10))
	header.Set("Upload-Length", strconv.FormatInt(info.Length, 10))
	if len(info.MetaData) != 0 {
		header.Set("Upload-Metadata", SerializeMetadataHeader(info.MetaData))
	}
	handler.sendResp(ctx, http.StatusOK)
}

// PatchFile appends the request body through tusd, which finalizes the upload
// once every byte arrived.
func (handler *Handler) PatchFile(ctx *gin.Context) {
	r := ctx.Request
	info, err := handler.lookup(ctx)
	if err != nil {
		handler.sendError(ctx, err)
		return
	}
	if info.Complete() {
		handler.finishComplete(ctx, info)
		return
	}
	if r.ContentLength > info.Length-info.Offset {
		// tusd refuses a body longer than the upload, the tail is dropped instead
		r.ContentLength = -1
	}
	handler.serve(ctx, handler.tusd.PatchFile)
}

// finishComplete retries the move of an upload that has every byte but is
// still in the upload directory. tusd acknowledges such a PATCH without
// finishing the upload.
func (handler *Handler) finishComplete(ctx *gin.Context, info UploadInfo) {
	r := ctx.Request
	if r.Header.Get("Content-Type") != offsetContentType {
		handler.sendError(ctx, tusd.ErrInvalidContentType)
		return
	}
	offset, err := strconv.ParseInt(r.Header.Get("Upload-Offset"), 10, 64)
	if err != nil || offset < 0 {
		handler.sendError(ctx, tusd.ErrInvalidOffset)
		return
	}

	if err := handler.locker.LockUpload(info.ID); err != nil {
		handler.sendError(ctx, err)
		return
	}
	defer handler.locker.UnlockUpload(info.ID)

	info, err = handler.getUpload(info.ID)
	if err != nil {
		handler.sendError(ctx, err)
		return
	}
	if offset != info.Offset {
		handler.sendError(ctx, tusd.ErrMismatchOffset)
		return
	}
	if info.Complete() {
		if _, err := handler.finalize(info); err != nil {
			log.Errorf("finalize upload %s: %v", info.ID, err)
			handler.sendError(ctx, err)
			return
		}
	}

	ctx.Header("Upload-Offset", strconv.FormatInt(info.Offset, 10))
	handler.sendResp(ctx, http.StatusNoContent)
}

// DelFile terminates an upload through tusd.
func (handler *Handler) DelFile(ctx *gin.Context) {
	if _, err := handler.lookup(ctx); err != nil {
		handler.sendError(ctx, err)
		return
	}
	handler.serve(ctx, handler.tusd.DelFile)
}

// serve hands the request to tusd and counts the errors it answered with.
func (handler *Handler) serve(ctx *gin.Context, h http.HandlerFunc) {
	h(ctx.Writer, ctx.Request)
	if status := ctx.Writer.Status(); status >= http.StatusBadRequest {
		incErrorsTotal(status)
		if status >= http.StatusInternalServerError {
			log.Errorf("%s %s: tusd answered %d", ctx.Request.Method, ctx.Request.URL.Path, status)
		}
	}
	ctx.Abort()
}

// lookup resolves the principal, id, record and ownership of a request, in
// that order.
func (handler *Handler) lookup(ctx *gin.Context) (UploadInfo, error) {
	principal := auth.Current(ctx)
	if principal == nil {
		return UploadInfo{}, ErrAuthRequired
	}
	id := ctx.Param("id")
	if !reUploadID.MatchString(id) {
		return UploadInfo{}, tusd.ErrNotFound
	}
	info, err := handler.getUpload(id)
	if err != nil {
		return info, err
	}
	if !handler.mayAccess(principal, info) {
		return info, ErrAccessDenied
	}
	return info, nil
}

func (handler *Handler) mayAccess(principal *model.Principal, info UploadInfo) bool {
	if info.OwnerID == "" {
		return handler.config.AllowUnownedUploads
	}
	return info.OwnerID == principal.ID
}

func (handler *Handler) extensionAllowed(filename string) bool {
	if handler.extensions.Cardinality() == 0 {
		return true
	}
	_, ext := pkg.SplitExt(filename)
	return handler.extensions.Contains(strings.ToLower(ext))
}

func (handler *Handler) sendError(ctx *gin.Context, err error) {
	r := ctx.Request
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		err = errReadTimeout
	}
	if strings.HasSuffix(err.Error(), "read: connection reset by peer") {
		err = errConnectionReset
	}

	var statusErr tusd.HTTPError
	if !errors.As(err, &statusErr) {
		statusErr = tusd.NewHTTPError(err, http.StatusInternalServerError)
	}
	if statusErr.StatusCode() >= http.StatusInternalServerError {
		log.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	}

	reason := append(statusErr.Body(), '\n')
	if r.Method == http.MethodHead {
		reason = nil
	}

	ctx.Header("Content-Type", "text/plain; charset=utf-8")
	ctx.Header("Content-Length", strconv.Itoa(len(reason)))
	ctx.Status(statusErr.StatusCode())
	ctx.Writer.WriteHeaderNow()
	ctx.Writer.Write(reason)
	ctx.Abort()

	incErrorsTotal(statusErr.StatusCode())
	log.Debugf("event=\"ResponseOutgoing\" status=\"%d\" method=\"%s\" path=\"%s\" error=\"%s\"",
		statusErr.StatusCode(), r.Method, r.URL.Path, err.Error())
}

func (handler *Handler) sendResp(ctx *gin.Context, status int) {
	ctx.Status(status)
	ctx.Writer.WriteHeaderNow()
	log.Debugf("event=\"ResponseOutgoing\" status=\"%d\" method=\"%s\" path=\"%s\"",
		status, ctx.Request.Method, ctx.Request.URL.Path)
}

// MethodOverride applies X-HTTP-Method-Override before routing, for clients
// that cannot send PATCH or DELETE.
func MethodOverride(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if newMethod := r.Header.Get("X-HTTP-Method-Override"); newMethod != "" && r.Method == http.MethodPost {
			r.Method = strings.ToUpper(newMethod)
		}
		h.ServeHTTP(w, r)
	})
}

// Stats returns the counters shown by the status endpoint.
func (handler *Handler) Stats() map[string]interface{} {
	stats := handler.stats.Get()
	if infos, err := handler.store.ListInfos(); err == nil {
		stats["uploads_in_flight"] = len(infos)
	}
	return stats
}
