package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	mapSet "github.com/deckarep/golang-set"
	"github.com/gin-gonic/gin"
	log "github.com/sjqzhang/seelog"

	"github.com/omero-biomero/tusgate/internal/logger"
	"github.com/omero-biomero/tusgate/pkg"
)

// accessLog writes one access line per request and turns panics into 500.
func accessLog(ctx *gin.Context) {
	start := time.Now()
	defer func() {
		if err := recover(); err != nil {
			log.Error(err)
			log.Error(string(debug.Stack()))
			ctx.AbortWithStatus(http.StatusInternalServerError)
		}
		logStr := fmt.Sprintf("[Access] %s | %s | %s | %s | %d |%s",
			time.Now().Format("2006/01/02 - 15:04:05"),
			time.Since(start).String(),
			pkg.GetClientIp(ctx.Request),
			ctx.Request.Method,
			ctx.Writer.Status(),
			ctx.Request.RequestURI,
		)
		logger.Access.Info(logStr)
	}()
	ctx.Next()
}

// crossOrigin opens the JSON api to browsers served from the allowed
// origins, any origin when none are listed. Credentials are never allowed.
// Preflight requests end here.
func crossOrigin(allowed mapSet.Set) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		w, r := ctx.Writer, ctx.Request
		if allow, ok := pkg.AllowOrigin(allowed, r.Header.Get("Origin")); ok {
			w.Header().Set("Access-Control-Allow-Origin", allow)
			if allow != "*" {
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-CSRFToken, X-Requested-With, Cache-Control, Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Expose-Headers", "Authorization")
		}
		if r.Method == http.MethodOptions {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}
		ctx.Next()
	}
}
