package tus

import (
	"encoding/base64"
	"path"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sjqzhang/tusd"
)

const DefaultFilename = "unknown"

// Keys below reservedPrefix belong to the gateway and never reach clients.
const (
	reservedPrefix = "tusgate."
	metaOwner      = reservedPrefix + "owner_id"
	metaNullKeys   = reservedPrefix + "null_keys"
	metaCreation   = reservedPrefix + "creation"
)

// ParseMetadataHeader decodes an Upload-Metadata header. A bare key maps to
// nil. A value that is not base64 of UTF-8 text is kept as sent.
func ParseMetadataHeader(header string) map[string]*string {
	meta := make(map[string]*string)

	for _, element := range strings.Split(header, ",") {
		element = strings.TrimSpace(element)
		if element == "" {
			continue
		}

		key, raw, hasValue := strings.Cut(element, " ")
		if key == "" {
			continue
		}
		if !hasValue {
			meta[key] = nil
			continue
		}

		raw = strings.TrimSpace(raw)
		value := raw
		if dec, err := base64.StdEncoding.DecodeString(raw); err == nil && utf8.Valid(dec) {
			value = string(dec)
		}
		meta[key] = &value
	}

	return meta
}

// SerializeMetadataHeader is the inverse of ParseMetadataHeader, keys sorted.
func SerializeMetadataHeader(meta map[string]*string) string {
	keys := make([]string, 0, len(meta))
	for key := range meta {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		if meta[key] == nil {
			parts = append(parts, key)
			continue
		}
		parts = append(parts, key+" "+base64.StdEncoding.EncodeToString([]byte(*meta[key])))
	}
	return strings.Join(parts, ",")
}

func hasReservedKey(meta map[string]*string) bool {
	for key := range meta {
		if strings.HasPrefix(key, reservedPrefix) {
			return true
		}
	}
	return false
}

// creation carries the principal and the typed metadata from PostFile to the
// data store, tusd only forwards the Upload-Metadata header in between.
type creation struct {
	OwnerID  string             `json:"owner_id"`
	MetaData map[string]*string `json:"metadata"`
}

func (c creation) header() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return metaCreation + " " + base64.StdEncoding.EncodeToString(data), nil
}

func creationFromMetaData(meta tusd.MetaData) (creation, bool) {
	c := creation{}
	raw, ok := meta[metaCreation]
	if !ok {
		return c, false
	}
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return c, false
	}
	return c, true
}

// stored flattens c into the string map tusd persists. Bare keys are listed
// under metaNullKeys.
func (c creation) stored() tusd.MetaData {
	stored := tusd.MetaData{}
	var nulls []string
	for key, value := range c.MetaData {
		if value == nil {
			nulls = append(nulls, key)
			continue
		}
		stored[key] = *value
	}
	if len(nulls) > 0 {
		sort.Strings(nulls)
		stored[metaNullKeys] = strings.Join(nulls, ",")
	}
	if c.OwnerID != "" {
		stored[metaOwner] = c.OwnerID
	}
	return stored
}

// splitStored is the inverse of creation.stored.
func splitStored(stored tusd.MetaData) (string, map[string]*string) {
	meta := make(map[string]*string, len(stored))
	for key, value := range stored {
		if strings.HasPrefix(key, reservedPrefix) {
			continue
		}
		value := value
		meta[key] = &value
	}
	if nulls := stored[metaNullKeys]; nulls != "" {
		for _, key := range strings.Split(nulls, ",") {
			meta[key] = nil
		}
	}
	return stored[metaOwner], meta
}

// FilenameFromMetadata returns the safe destination name for an upload.
func FilenameFromMetadata(meta map[string]*string) string {
	if v, ok := meta["filename"]; ok && v != nil {
		return SanitizeFilename(*v)
	}
	return DefaultFilename
}

// SanitizeFilename reduces name to a single path element.
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimSpace(name)
	switch name {
	case "", ".", "..", "/":
		return DefaultFilename
	}
	return name
}
