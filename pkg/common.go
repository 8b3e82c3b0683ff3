package pkg

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	mapSet "github.com/deckarep/golang-set"
	"github.com/sjqzhang/goutil"
)

var util = &goutil.Common{}

// SliceToMapSet lower-cases items when fold is set, handy for extension lists.
func SliceToMapSet(items []string, fold bool) mapSet.Set {
	result := mapSet.NewSet()
	for _, v := range items {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if fold {
			v = strings.ToLower(v)
		}
		result.Add(v)
	}
	return result
}

func MapSetToStr(set mapSet.Set, sep string) string {
	var (
		ret []string
	)
	for v := range set.Iter() {
		ret = append(ret, v.(string))
	}
	return strings.Join(ret, sep)
}

func FileExists(fileName string) bool {
	_, err := os.Stat(fileName)
	return err == nil
}

// FileAndExists check is the file exists, not dir
func FileAndExists(fileName string) bool {
	fileInfo, err := os.Stat(fileName)
	return err == nil && !fileInfo.IsDir()
}

// DirExists check the path exists and is a dir
func DirExists(dir string) bool {
	fileInfo, err := os.Stat(dir)
	return err == nil && fileInfo.IsDir()
}

func WriteFile(path string, data string) bool {
	return os.WriteFile(path, []byte(data), 0664) == nil
}

// AllowOrigin returns the Access-Control-Allow-Origin value for origin. An
// empty allowed set admits every origin as "*", otherwise only listed origins
// are echoed back.
func AllowOrigin(allowed mapSet.Set, origin string) (string, bool) {
	if allowed == nil || allowed.Cardinality() == 0 {
		return "*", true
	}
	if allowed.Contains(strings.ToLower(origin)) {
		return origin, true
	}
	return "", false
}

func GetClientIp(r *http.Request) string {
	return util.GetClientIp(r)
}

// CreateDirectories creates dir and its parents, failing when a plain file is in the way.
func CreateDirectories(dir string, perm os.FileMode) error {
	if FileAndExists(dir) {
		return fmt.Errorf("%s is file and already exists, please check", dir)
	}

	if err := os.MkdirAll(dir, perm); err != nil {
		return err
	}
	return nil
}
