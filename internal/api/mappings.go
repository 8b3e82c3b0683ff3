package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sjqzhang/seelog"

	"github.com/omero-biomero/tusgate/internal/auth"
	"github.com/omero-biomero/tusgate/internal/mappings"
	"github.com/omero-biomero/tusgate/internal/model"
)

type mappingsBody struct {
	Mappings map[string]interface{} `json:"mappings"`
}

// GroupMappings serves the group to folder mappings, only admins may change them.
func GroupMappings(path string, router *gin.RouterGroup, store *mappings.Store) {
	router.GET(path, func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, mappingsBody{Mappings: store.Get()})
	})

	router.POST(path, auth.RequireAdmin, func(ctx *gin.Context) {
		var body mappingsBody
		if err := ctx.ShouldBindJSON(&body); err != nil {
			ctx.JSON(http.StatusBadRequest, model.NewFailResult("Invalid JSON data"))
			return
		}
		if err := store.Save(body.Mappings); err != nil {
			log.Error(err)
			ctx.JSON(http.StatusInternalServerError, model.NewFailResult(err.Error()))
			return
		}
		log.Info("group mappings saved by ", auth.Current(ctx).Name)
		ctx.JSON(http.StatusOK, gin.H{"message": "Mappings saved"})
	})
}
