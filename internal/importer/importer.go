package importer

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	mapSet "github.com/deckarep/golang-set"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	log "github.com/sjqzhang/seelog"

	"github.com/omero-biomero/tusgate/internal/model"
	"github.com/omero-biomero/tusgate/pkg"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrNoItems        = errors.New("No items selected")
	ErrNoDestinations = errors.New("No destinations selected")
	ErrNoGroup        = errors.New("No group specified")
	ErrNotMember      = errors.New("User is not a member of group")
	ErrOutsideRoot    = errors.New("path escapes the owner directory")
	ErrMissingFile    = errors.New("file does not exist")
	ErrUnknownType    = errors.New("unknown destination type")
)

const (
	TypeScreen  = "Screen"
	TypeDataset = "Dataset"

	preprocessNone       = "no_preprocessing"
	preprocessScreenDB   = "screen_db"
	preprocessLeicaImage = "dataset_leica_uuid"
)

// leicaExtensions hold several images per file, a sub image is picked by uuid.
var leicaExtensions = mapSet.NewSetFromSlice([]interface{}{".lif", ".xlef", ".lof"})

// Item is one selected file, sent either as a bare path or as
// {"localPath": .., "uuid": ..}.
type Item struct {
	LocalPath string `json:"localPath"`
	UUID      string `json:"uuid,omitempty"`
}

func (item *Item) UnmarshalJSON(data []byte) error {
	var path string
	if err := json.Unmarshal(data, &path); err == nil {
		item.LocalPath = path
		item.UUID = ""
		return nil
	}
	type plain Item
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*item = Item(p)
	return nil
}

// Destination is an OMERO container, sent as ["Dataset", 12].
type Destination struct {
	Type string
	ID   string
}

func (d *Destination) UnmarshalJSON(data []byte) error {
	var pair []interface{}
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("destination must be [type, id], got %d elements", len(pair))
	}
	t, ok := pair[0].(string)
	if !ok {
		return fmt.Errorf("destination type must be a string")
	}
	d.Type = t
	switch id := pair[1].(type) {
	case string:
		d.ID = id
	case float64:
		d.ID = strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Errorf("destination id must be a string or a number")
	}
	return nil
}

func (d Destination) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{d.Type, d.ID})
}

type Selection struct {
	SelectedLocal []Item        `json:"selectedLocal"`
	SelectedOmero []Destination `json:"selectedOmero"`
	Group         string        `json:"group"`
}

type Request struct {
	Upload Selection `json:"upload"`
}

// Importer turns selections of finalized uploads into upload orders.
type Importer struct {
	root string
	sink Sink
	now  func() time.Time
}

// New resolves selected paths below destinationDir/user_<owner>.
func New(destinationDir string, sink Sink) *Importer {
	return &Importer{root: destinationDir, sink: sink, now: time.Now}
}

func (im *Importer) Sink() Sink {
	return im.sink
}

type groupKey struct {
	destType   string
	destID     string
	preprocess string
}

type selectedFile struct {
	path string
	uuid string
}

// Import validates the selection for principal and submits one order per
// destination and preprocessing kind. The submitted orders are returned.
func (im *Importer) Import(principal *model.Principal, sel Selection) ([]model.UploadOrder, error) {
	if len(sel.SelectedLocal) == 0 {
		return nil, ErrNoItems
	}
	if len(sel.SelectedOmero) == 0 {
		return nil, ErrNoDestinations
	}
	if sel.Group == "" {
		return nil, ErrNoGroup
	}
	if !principal.InGroup(sel.Group) {
		return nil, fmt.Errorf("%w: %s", ErrNotMember, sel.Group)
	}

	files := make([]selectedFile, 0, len(sel.SelectedLocal))
	root := filepath.Join(im.root, model.OwnerDir(principal.ID))
	for _, item := range sel.SelectedLocal {
		full, ok := pkg.JoinUnder(root, item.LocalPath)
		if !ok || full == root {
			return nil, fmt.Errorf("%w: %s", ErrOutsideRoot, item.LocalPath)
		}
		if !pkg.FileExists(full) {
			return nil, fmt.Errorf("%w: %s", ErrMissingFile, item.LocalPath)
		}
		files = append(files, selectedFile{path: full, uuid: item.UUID})
	}

	var keys []groupKey
	groups := make(map[groupKey][]selectedFile)
	for _, file := range files {
		log.Info(fmt.Sprintf("Importing: %s to %v (UUID: %s)", file.path, sel.SelectedOmero, file.uuid))
		for _, dest := range sel.SelectedOmero {
			key, err := classify(dest, file)
			if err != nil {
				return nil, err
			}
			if _, ok := groups[key]; !ok {
				keys = append(keys, key)
			}
			groups[key] = append(groups[key], file)
		}
	}

	var orders []model.UploadOrder
	for _, key := range keys {
		orders = append(orders, im.buildOrders(principal, sel.Group, key, groups[key])...)
	}
	for _, order := range orders {
		if err := im.sink.Submit(order); err != nil {
			return nil, fmt.Errorf("submit order %s: %w", order.UUID, err)
		}
	}
	return orders, nil
}

func classify(dest Destination, file selectedFile) (groupKey, error) {
	key := groupKey{destID: dest.ID, preprocess: preprocessNone}
	_, ext := pkg.SplitExt(strings.ToLower(file.path))
	switch dest.Type {
	case "screens", "Screen":
		key.destType = TypeScreen
		if ext == ".db" {
			key.preprocess = preprocessScreenDB
		}
	case "datasets", "Dataset":
		key.destType = TypeDataset
		if file.uuid != "" && leicaExtensions.Contains(ext) {
			key.preprocess = preprocessLeicaImage
		}
	default:
		return key, fmt.Errorf("%w %s for id %s", ErrUnknownType, dest.Type, dest.ID)
	}
	return key, nil
}

func (im *Importer) buildOrders(principal *model.Principal, group string, key groupKey, files []selectedFile) []model.UploadOrder {
	newOrder := func(selected []string) model.UploadOrder {
		return model.UploadOrder{
			UUID:            uuid.NewString(),
			Group:           group,
			Username:        principal.Name,
			OwnerID:         principal.ID,
			DestinationID:   key.destID,
			DestinationType: key.destType,
			Files:           selected,
			Stage:           model.OrderStageNew,
			Timestamp:       im.now().Unix(),
		}
	}

	switch key.preprocess {
	case preprocessScreenDB:
		order := newOrder(paths(files))
		order.PreprocessingContainer = "cellularimagingcf/cimagexpresstoometiff:v0.7"
		setPreprocessingFolders(&order)
		order.ExtraParams = map[string]string{"saveoption": "single"}
		return []model.UploadOrder{order}
	case preprocessLeicaImage:
		orders := make([]model.UploadOrder, 0, len(files))
		for _, file := range files {
			order := newOrder([]string{file.path})
			order.PreprocessingContainer = "cellularimagingcf/convertleica-docker:v1.2.0"
			setPreprocessingFolders(&order)
			order.ExtraParams = map[string]string{"image_uuid": file.uuid}
			orders = append(orders, order)
		}
		return orders
	}
	return []model.UploadOrder{newOrder(paths(files))}
}

func setPreprocessingFolders(order *model.UploadOrder) {
	order.PreprocessingInputfile = "{Files}"
	order.PreprocessingOutputfolder = "/data"
	order.PreprocessingAltOutputfolder = "/out"
}

func paths(files []selectedFile) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.path)
	}
	return out
}
