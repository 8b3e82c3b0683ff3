package importer

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/omero-biomero/tusgate/internal/model"
)

type memorySink struct {
	orders []model.UploadOrder
	err    error
}

func (sink *memorySink) Submit(order model.UploadOrder) error {
	if sink.err != nil {
		return sink.err
	}
	sink.orders = append(sink.orders, order)
	return nil
}

var alice = &model.Principal{ID: "5", Name: "alice", Groups: []string{"grp1", "grp2"}}

func newImporter(t *testing.T, sink Sink, files ...string) (*Importer, string) {
	dest := t.TempDir()
	owner := filepath.Join(dest, "user_5")
	for _, f := range files {
		full := filepath.Join(owner, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0775))
		require.NoError(t, os.WriteFile(full, []byte("x"), 0664))
	}
	im := New(dest, sink)
	im.now = func() time.Time { return time.Unix(1700000000, 0) }
	return im, owner
}

func decodeRequest(t *testing.T, body string) Selection {
	var req Request
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	return req.Upload
}

func TestRequestDecoding(t *testing.T) {
	sel := decodeRequest(t, `{"upload":{
		"selectedLocal":["a.tif", {"localPath":"b.lif","uuid":"u-1"}],
		"selectedOmero":[["datasets", 12], ["Screen", "7"]],
		"group":"grp1"}}`)
	assert.Equal(t, []Item{{LocalPath: "a.tif"}, {LocalPath: "b.lif", UUID: "u-1"}}, sel.SelectedLocal)
	assert.Equal(t, []Destination{{Type: "datasets", ID: "12"}, {Type: "Screen", ID: "7"}}, sel.SelectedOmero)
	assert.Equal(t, "grp1", sel.Group)

	var req Request
	assert.Error(t, json.Unmarshal([]byte(`{"upload":{"selectedOmero":[["Dataset"]]}}`), &req))
	assert.Error(t, json.Unmarshal([]byte(`{"upload":{"selectedOmero":[["Dataset", true]]}}`), &req))
}

func TestImportValidation(t *testing.T) {
	sink := &memorySink{}
	im, _ := newImporter(t, sink, "a.tif")

	tests := []struct {
		name string
		sel  Selection
		err  error
	}{
		{"no items", Selection{SelectedOmero: []Destination{{"Dataset", "1"}}, Group: "grp1"}, ErrNoItems},
		{"no destinations", Selection{SelectedLocal: []Item{{LocalPath: "a.tif"}}, Group: "grp1"}, ErrNoDestinations},
		{"no group", Selection{SelectedLocal: []Item{{LocalPath: "a.tif"}}, SelectedOmero: []Destination{{"Dataset", "1"}}}, ErrNoGroup},
		{"foreign group", Selection{SelectedLocal: []Item{{LocalPath: "a.tif"}}, SelectedOmero: []Destination{{"Dataset", "1"}}, Group: "grp3"}, ErrNotMember},
		{"group case differs", Selection{SelectedLocal: []Item{{LocalPath: "a.tif"}}, SelectedOmero: []Destination{{"Dataset", "1"}}, Group: "GRP1"}, ErrNotMember},
		{"traversal", Selection{SelectedLocal: []Item{{LocalPath: "../user_6/a.tif"}}, SelectedOmero: []Destination{{"Dataset", "1"}}, Group: "grp1"}, ErrOutsideRoot},
		{"owner root", Selection{SelectedLocal: []Item{{LocalPath: "."}}, SelectedOmero: []Destination{{"Dataset", "1"}}, Group: "grp1"}, ErrOutsideRoot},
		{"missing", Selection{SelectedLocal: []Item{{LocalPath: "nope.tif"}}, SelectedOmero: []Destination{{"Dataset", "1"}}, Group: "grp1"}, ErrMissingFile},
		{"unknown type", Selection{SelectedLocal: []Item{{LocalPath: "a.tif"}}, SelectedOmero: []Destination{{"Project", "1"}}, Group: "grp1"}, ErrUnknownType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := im.Import(alice, tt.sel)
			assert.ErrorIs(t, err, tt.err)
		})
	}
	assert.Empty(t, sink.orders)
}

func TestImportPlainDataset(t *testing.T) {
	sink := &memorySink{}
	im, owner := newImporter(t, sink, "a.tif", "dir/b.tif")

	orders, err := im.Import(alice, Selection{
		SelectedLocal: []Item{{LocalPath: "a.tif"}, {LocalPath: "dir/b.tif"}},
		SelectedOmero: []Destination{{"datasets", "12"}},
		Group:         "grp1",
	})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, orders, sink.orders)

	order := orders[0]
	assert.NotEmpty(t, order.UUID)
	assert.Equal(t, "grp1", order.Group)
	assert.Equal(t, "alice", order.Username)
	assert.Equal(t, "5", order.OwnerID)
	assert.Equal(t, "12", order.DestinationID)
	assert.Equal(t, TypeDataset, order.DestinationType)
	assert.Equal(t, []string{filepath.Join(owner, "a.tif"), filepath.Join(owner, "dir", "b.tif")}, order.Files)
	assert.Equal(t, model.OrderStageNew, order.Stage)
	assert.Equal(t, int64(1700000000), order.Timestamp)
	assert.Empty(t, order.PreprocessingContainer)
	assert.Nil(t, order.ExtraParams)
}

func TestImportScreenDB(t *testing.T) {
	sink := &memorySink{}
	im, owner := newImporter(t, sink, "plate/experiment.db", "plate.tif")

	orders, err := im.Import(alice, Selection{
		SelectedLocal: []Item{{LocalPath: "plate/experiment.db"}, {LocalPath: "plate.tif"}},
		SelectedOmero: []Destination{{"screens", "3"}},
		Group:         "grp2",
	})
	require.NoError(t, err)
	require.Len(t, orders, 2)

	db := orders[0]
	assert.Equal(t, TypeScreen, db.DestinationType)
	assert.Equal(t, []string{filepath.Join(owner, "plate", "experiment.db")}, db.Files)
	assert.Equal(t, "cellularimagingcf/cimagexpresstoometiff:v0.7", db.PreprocessingContainer)
	assert.Equal(t, "{Files}", db.PreprocessingInputfile)
	assert.Equal(t, "/data", db.PreprocessingOutputfolder)
	assert.Equal(t, "/out", db.PreprocessingAltOutputfolder)
	assert.Equal(t, map[string]string{"saveoption": "single"}, db.ExtraParams)

	plain := orders[1]
	assert.Equal(t, []string{filepath.Join(owner, "plate.tif")}, plain.Files)
	assert.Empty(t, plain.PreprocessingContainer)
	assert.NotEqual(t, db.UUID, plain.UUID)
}

func TestImportLeicaSubImages(t *testing.T) {
	sink := &memorySink{}
	im, owner := newImporter(t, sink, "scan.LIF", "other.xlef", "c.tif")

	orders, err := im.Import(alice, Selection{
		SelectedLocal: []Item{
			{LocalPath: "scan.LIF", UUID: "u-1"},
			{LocalPath: "other.xlef", UUID: "u-2"},
			{LocalPath: "scan.LIF"},
			{LocalPath: "c.tif", UUID: "ignored"},
		},
		SelectedOmero: []Destination{{"Dataset", "9"}},
		Group:         "grp1",
	})
	require.NoError(t, err)
	require.Len(t, orders, 3)

	for i, want := range []struct{ file, uuid string }{{"scan.LIF", "u-1"}, {"other.xlef", "u-2"}} {
		order := orders[i]
		assert.Equal(t, []string{filepath.Join(owner, want.file)}, order.Files)
		assert.Equal(t, "cellularimagingcf/convertleica-docker:v1.2.0", order.PreprocessingContainer)
		assert.Equal(t, "/out", order.PreprocessingAltOutputfolder)
		assert.Equal(t, map[string]string{"image_uuid": want.uuid}, order.ExtraParams)
	}
	assert.Equal(t, []string{filepath.Join(owner, "scan.LIF"), filepath.Join(owner, "c.tif")}, orders[2].Files)
	assert.Empty(t, orders[2].PreprocessingContainer)
}

func TestImportSeveralDestinations(t *testing.T) {
	sink := &memorySink{}
	im, _ := newImporter(t, sink, "a.tif")

	orders, err := im.Import(alice, Selection{
		SelectedLocal: []Item{{LocalPath: "a.tif"}},
		SelectedOmero: []Destination{{"Dataset", "1"}, {"Dataset", "2"}, {"Screen", "1"}},
		Group:         "grp1",
	})
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, "1", orders[0].DestinationID)
	assert.Equal(t, "2", orders[1].DestinationID)
	assert.Equal(t, TypeScreen, orders[2].DestinationType)
}

func TestImportSinkFailure(t *testing.T) {
	boom := errors.New("boom")
	im, _ := newImporter(t, &memorySink{err: boom}, "a.tif")
	_, err := im.Import(alice, Selection{
		SelectedLocal: []Item{{LocalPath: "a.tif"}},
		SelectedOmero: []Destination{{"Dataset", "1"}},
		Group:         "grp1",
	})
	assert.ErrorIs(t, err, boom)
}

func TestLevelDBSink(t *testing.T) {
	db, err := leveldb.OpenFile(filepath.Join(t.TempDir(), "orders.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	sink := NewLevelDBSink(db)
	orders, err := sink.List()
	require.NoError(t, err)
	assert.Empty(t, orders)

	second := model.UploadOrder{UUID: "b", Files: []string{"/x"}, Stage: model.OrderStageNew, Timestamp: 20}
	first := model.UploadOrder{UUID: "z", Files: []string{"/y"}, Stage: model.OrderStageNew, Timestamp: 10}
	require.NoError(t, sink.Submit(second))
	require.NoError(t, sink.Submit(first))
	require.NoError(t, db.Put([]byte("order:broken"), []byte("{"), nil))
	require.NoError(t, db.Put([]byte("upload:other"), []byte("{}"), nil))

	orders, err = sink.List()
	require.NoError(t, err)
	assert.Equal(t, []model.UploadOrder{first, second}, orders)
}

func TestWebhookSink(t *testing.T) {
	var received model.UploadOrder
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil || received.UUID == "fail" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, time.Second)
	order := model.UploadOrder{UUID: "o-1", Group: "grp1", Files: []string{"/a"}, Stage: model.OrderStageNew}
	require.NoError(t, sink.Submit(order))
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, order, received)

	assert.Error(t, sink.Submit(model.UploadOrder{UUID: "fail"}))
}

func TestNewSink(t *testing.T) {
	db, err := leveldb.OpenFile(filepath.Join(t.TempDir(), "orders.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	sink, err := NewSink("", db, "", 0)
	require.NoError(t, err)
	assert.IsType(t, &LevelDBSink{}, sink)

	sink, err = NewSink(SinkWebhook, nil, "http://localhost:1/orders", 0)
	require.NoError(t, err)
	_, listable := sink.(Lister)
	assert.False(t, listable)

	_, err = NewSink(SinkWebhook, nil, "", 0)
	assert.Error(t, err)
	_, err = NewSink(SinkLevelDB, nil, "", 0)
	assert.Error(t, err)
	_, err = NewSink("kafka", db, "", 0)
	assert.Error(t, err)
}
