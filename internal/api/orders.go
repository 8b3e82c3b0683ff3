package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sjqzhang/seelog"

	"github.com/omero-biomero/tusgate/internal/auth"
	"github.com/omero-biomero/tusgate/internal/importer"
	"github.com/omero-biomero/tusgate/internal/model"
)

// Import queues upload orders for the selected files.
//
// curl -H 'X-Omero-User-Id: 2' -H 'X-Omero-Groups: lab' -d \
// '{"upload":{"selectedLocal":["a.tif"],"selectedOmero":[["Dataset",1]],"group":"lab"}}' \
// http://127.0.0.1:8080/api/import
func Import(path string, router *gin.RouterGroup, im *importer.Importer) {
	router.POST(path, func(ctx *gin.Context) {
		var req importer.Request
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, model.NewFailResult("Invalid JSON data"))
			return
		}
		principal := auth.Current(ctx)
		log.Info(fmt.Sprintf("User %s (ID: %s, group: %s) attempting to import %d items",
			principal.Name, principal.ID, req.Upload.Group, len(req.Upload.SelectedLocal)))

		if _, err := im.Import(principal, req.Upload); err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, importer.ErrNotMember), errors.Is(err, importer.ErrOutsideRoot):
				status = http.StatusForbidden
			case errors.Is(err, importer.ErrNoItems), errors.Is(err, importer.ErrNoDestinations),
				errors.Is(err, importer.ErrNoGroup), errors.Is(err, importer.ErrMissingFile),
				errors.Is(err, importer.ErrUnknownType):
				status = http.StatusBadRequest
			default:
				log.Error("Import error: ", err)
			}
			ctx.JSON(status, model.NewFailResult(err.Error()))
			return
		}
		ctx.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": fmt.Sprintf("Successfully queued %d items for import", len(req.Upload.SelectedLocal)),
		})
	})
}

// ListOrders returns the recorded orders, everyone sees their own and admins see all.
func ListOrders(path string, router *gin.RouterGroup, im *importer.Importer) {
	router.GET(path, func(ctx *gin.Context) {
		lister, ok := im.Sink().(importer.Lister)
		if !ok {
			ctx.JSON(http.StatusNotImplemented, model.NewFailResult("order sink does not keep orders"))
			return
		}
		orders, err := lister.List()
		if err != nil {
			log.Error(err)
			ctx.JSON(http.StatusInternalServerError, model.NewFailResult(err.Error()))
			return
		}
		principal := auth.Current(ctx)
		if !principal.Admin {
			own := make([]model.UploadOrder, 0, len(orders))
			for _, order := range orders {
				if order.OwnerID == principal.ID {
					own = append(own, order)
				}
			}
			orders = own
		}
		ctx.JSON(http.StatusOK, model.NewOkResult(orders))
	})
}
