package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/astaxie/beego/httplib"
	jsoniter "github.com/json-iterator/go"
	log "github.com/sjqzhang/seelog"

	"github.com/omero-biomero/tusgate/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// forwarded request headers, hop-by-hop and body headers are left out
var forwardHeaders = []string{"Cookie", "Authorization", "X-CSRFToken", "X-Forwarded-For", "User-Agent"}

// URLResolver asks an external endpoint, typically an OMERO.web view, who the
// caller is. The endpoint answers with a JsonResult whose data is the principal
// when status is "ok".
type URLResolver struct {
	url     string
	timeout time.Duration
}

func NewURLResolver(url string, timeout time.Duration) *URLResolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &URLResolver{url: url, timeout: timeout}
}

type principalResult struct {
	Message string           `json:"message"`
	Status  string           `json:"status"`
	Data    *model.Principal `json:"data"`
}

func (resolver *URLResolver) Resolve(r *http.Request) (*model.Principal, error) {
	var (
		err    error
		req    *httplib.BeegoHTTPRequest
		result string
		res    principalResult
	)

	send := false
	req = httplib.Post(resolver.url)
	req.SetTimeout(resolver.timeout, resolver.timeout)
	for _, k := range forwardHeaders {
		if v := r.Header.Get(k); v != "" {
			req.Header(k, v)
			send = true
		}
	}
	if !send {
		return nil, nil
	}
	req.Param("__path__", r.URL.Path)
	req.Param("__method__", r.Method)

	if result, err = req.String(); err != nil {
		return nil, err
	}
	result = strings.TrimSpace(result)
	if !strings.HasPrefix(result, "{") {
		log.Warn(result)
		return nil, nil
	}
	if err = json.Unmarshal([]byte(result), &res); err != nil {
		return nil, fmt.Errorf("decode auth response: %w", err)
	}
	if res.Status != model.StatusOk || res.Data == nil || res.Data.ID == "" {
		return nil, nil
	}
	return res.Data, nil
}
