package model

type JsonResult struct {
	Message string      `json:"message"`
	Status  string      `json:"status"`
	Data    interface{} `json:"data"`
}

const (
	StatusOk    = "ok"
	StatusFail  = "fail"
	StatusError = "error"
)

func NewOkResult(data interface{}) JsonResult {
	return JsonResult{Status: StatusOk, Message: StatusOk, Data: data}
}

func NewFailResult(message string) JsonResult {
	return JsonResult{Status: StatusFail, Message: message}
}

// FileInfoResult describes one entry of a directory listing.
type FileInfoResult struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Size    int64  `json:"size,omitempty"`
	ModTime int64  `json:"mtime,omitempty"`
}

type DirListing struct {
	Dirs  []FileInfoResult `json:"dirs"`
	Files []FileInfoResult `json:"files"`
}
