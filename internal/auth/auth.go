package auth

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sjqzhang/seelog"

	"github.com/omero-biomero/tusgate/internal/config"
	"github.com/omero-biomero/tusgate/internal/model"
)

const principalKey = "tusgate.principal"

// Resolver maps a request to the calling principal. A nil principal with a
// nil error means the request is not authenticated.
type Resolver interface {
	Resolve(r *http.Request) (*model.Principal, error)
}

// NewResolver builds the resolver selected by auth_mode.
func NewResolver(conf *config.Config) (Resolver, error) {
	switch conf.AuthMode() {
	case "header":
		return HeaderResolver{}, nil
	case "jwt":
		return NewJWTResolver([]byte(conf.JwtSecret())), nil
	case "auth_url":
		return NewURLResolver(conf.AuthUrl(), conf.AuthTimeout()), nil
	}
	return nil, fmt.Errorf("unknown auth mode %q", conf.AuthMode())
}

// Middleware resolves the principal once per request. Resolution failures and
// ids that cannot name an owner directory leave the request unauthenticated,
// handlers decide whether that matters.
func Middleware(resolver Resolver) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Method == http.MethodOptions {
			ctx.Next()
			return
		}
		principal, err := resolver.Resolve(ctx.Request)
		if err != nil {
			log.Warnf("resolve principal for %s %s: %v", ctx.Request.Method, ctx.Request.URL.Path, err)
			principal = nil
		}
		if principal != nil && !model.ValidOwnerID(principal.ID) {
			log.Warnf("reject principal id %q for %s %s: not usable as a directory name",
				principal.ID, ctx.Request.Method, ctx.Request.URL.Path)
			principal = nil
		}
		if principal != nil {
			ctx.Set(principalKey, principal)
		}
		ctx.Next()
	}
}

// Current returns the principal stored by Middleware, or nil.
func Current(ctx *gin.Context) *model.Principal {
	v, ok := ctx.Get(principalKey)
	if !ok {
		return nil
	}
	principal, _ := v.(*model.Principal)
	return principal
}

// Require aborts with 401 when no principal is known.
func Require(ctx *gin.Context) {
	if Current(ctx) == nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, model.NewFailResult("Authentication required"))
		return
	}
	ctx.Next()
}

// RequireAdmin aborts with 401 or 403 unless the principal is an admin.
func RequireAdmin(ctx *gin.Context) {
	principal := Current(ctx)
	if principal == nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, model.NewFailResult("Authentication required"))
		return
	}
	if !principal.Admin {
		ctx.AbortWithStatusJSON(http.StatusForbidden, model.NewFailResult("Admin privileges required"))
		return
	}
	ctx.Next()
}
