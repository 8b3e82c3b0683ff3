package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sjqzhang/seelog"

	"github.com/omero-biomero/tusgate/internal/auth"
	"github.com/omero-biomero/tusgate/internal/browser"
	"github.com/omero-biomero/tusgate/internal/model"
)

// ListFiles lists the finalized uploads of the caller, admins may look into
// another owner's directory with ?owner=<id>.
//
// curl -H 'X-Omero-User-Id: 2' 'http://127.0.0.1:8080/api/files?path=plates'
func ListFiles(path string, router *gin.RouterGroup, b *browser.Browser) {
	router.GET(path, func(ctx *gin.Context) {
		principal := auth.Current(ctx)
		owner := principal.ID
		if o := ctx.Query("owner"); o != "" && o != owner {
			if !principal.Admin {
				ctx.JSON(http.StatusForbidden, model.NewFailResult("Only admins may browse other users"))
				return
			}
			if !model.ValidOwnerID(o) {
				ctx.JSON(http.StatusBadRequest, model.NewFailResult("Invalid owner id"))
				return
			}
			owner = o
		}

		listing, err := b.List(owner, ctx.Query("path"))
		if err != nil {
			switch {
			case errors.Is(err, browser.ErrOutsideRoot):
				ctx.JSON(http.StatusForbidden, model.NewFailResult(err.Error()))
			case errors.Is(err, browser.ErrNotExist):
				ctx.JSON(http.StatusNotFound, model.NewFailResult(err.Error()))
			case errors.Is(err, browser.ErrNotDir):
				ctx.JSON(http.StatusBadRequest, model.NewFailResult(err.Error()))
			default:
				log.Error(err)
				ctx.JSON(http.StatusInternalServerError, model.NewFailResult(err.Error()))
			}
			return
		}
		ctx.JSON(http.StatusOK, listing)
	})
}
