package auth

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/omero-biomero/tusgate/internal/model"
)

const (
	HeaderUserID   = "X-Omero-User-Id"
	HeaderUserName = "X-Omero-User-Name"
	HeaderAdmin    = "X-Omero-Admin"
	HeaderGroups   = "X-Omero-Groups"
)

// HeaderResolver trusts identity headers set by the OMERO.web front proxy.
// Only use it when clients cannot reach the service directly.
type HeaderResolver struct{}

func (HeaderResolver) Resolve(r *http.Request) (*model.Principal, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return nil, nil
	}
	admin, _ := strconv.ParseBool(r.Header.Get(HeaderAdmin))
	var groups []string
	for _, g := range strings.Split(r.Header.Get(HeaderGroups), ",") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	return &model.Principal{
		ID:     id,
		Name:   r.Header.Get(HeaderUserName),
		Admin:  admin,
		Groups: groups,
	}, nil
}
