package importer

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/astaxie/beego/httplib"
	log "github.com/sjqzhang/seelog"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/omero-biomero/tusgate/internal/model"
)

const (
	SinkLevelDB = "leveldb"
	SinkWebhook = "webhook"

	levelDBOrderPrefix = "order:"
)

// Sink receives new upload orders for the ingest pipeline.
type Sink interface {
	Submit(order model.UploadOrder) error
}

// Lister is implemented by sinks that keep the orders they received.
type Lister interface {
	List() ([]model.UploadOrder, error)
}

// LevelDBSink records orders in the service database.
type LevelDBSink struct {
	db *leveldb.DB
}

func NewLevelDBSink(db *leveldb.DB) *LevelDBSink {
	return &LevelDBSink{db: db}
}

func (sink *LevelDBSink) Submit(order model.UploadOrder) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return sink.db.Put([]byte(levelDBOrderPrefix+order.UUID), data, nil)
}

// List returns the recorded orders, oldest first.
func (sink *LevelDBSink) List() ([]model.UploadOrder, error) {
	orders := []model.UploadOrder{}
	iter := sink.db.NewIterator(util.BytesPrefix([]byte(levelDBOrderPrefix)), nil)
	defer iter.Release()
	for iter.Next() {
		var order model.UploadOrder
		if err := json.Unmarshal(iter.Value(), &order); err != nil {
			log.Warn(fmt.Sprintf("skip broken order %s: %v", iter.Key(), err))
			continue
		}
		orders = append(orders, order)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Timestamp < orders[j].Timestamp
	})
	return orders, iter.Error()
}

// WebhookSink posts every order as JSON to an external endpoint.
type WebhookSink struct {
	url     string
	timeout time.Duration
}

func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{url: url, timeout: timeout}
}

func (sink *WebhookSink) Submit(order model.UploadOrder) error {
	req := httplib.Post(sink.url)
	req.SetTimeout(sink.timeout, sink.timeout)
	req.Header("Content-Type", "application/json")
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	req.Body(data)
	resp, err := req.Response()
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook %s answered %s", sink.url, resp.Status)
	}
	return nil
}

// NewSink builds the sink named by kind.
func NewSink(kind string, db *leveldb.DB, webhookURL string, timeout time.Duration) (Sink, error) {
	switch kind {
	case "", SinkLevelDB:
		if db == nil {
			return nil, fmt.Errorf("order sink %s needs a database", SinkLevelDB)
		}
		return NewLevelDBSink(db), nil
	case SinkWebhook:
		if webhookURL == "" {
			return nil, fmt.Errorf("order sink %s needs order_webhook_url", SinkWebhook)
		}
		return NewWebhookSink(webhookURL, timeout), nil
	}
	return nil, fmt.Errorf("unknown order sink %q", kind)
}
