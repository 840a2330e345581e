package export

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sqlchat/sqlchat/internal/observability"
	"github.com/sqlchat/sqlchat/internal/query"
	"github.com/sqlchat/sqlchat/internal/storage"
)

const contentTypeParquet = "application/vnd.apache.parquet"

type Request struct {
	SessionID string
	Turn      int
	Question  string
	SQL       string
	Result    query.Result
}

type Receipt struct {
	Key        string    `json:"key"`
	Location   string    `json:"location"`
	Rows       int64     `json:"rows"`
	SizeBytes  int64     `json:"size_bytes"`
	ExportedAt time.Time `json:"exported_at"`
	Existing   bool      `json:"existing"`
}

// Exporter writes turn results to object storage. A turn's result never
// changes, so the store's write-once guarantee decides between a fresh export
// and reporting the one already there.
type Exporter struct {
	store storage.ObjectStore
	now   func() time.Time
}

func NewExporter(store storage.ObjectStore) (*Exporter, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	return &Exporter{store: store, now: time.Now}, nil
}

func (e *Exporter) Export(ctx context.Context, req Request) (Receipt, error) {
	receipt, err := e.export(ctx, req)
	observability.ObserveExport(err)
	return receipt, err
}

// Object metadata stored beside every export, read back when a turn was
// already exported.
const (
	metaSessionID  = "sqlchat-session-id"
	metaTurn       = "sqlchat-turn"
	metaRows       = "sqlchat-rows"
	metaExportedAt = "sqlchat-exported-at"
)

func (e *Exporter) export(ctx context.Context, req Request) (Receipt, error) {
	key, err := storage.BuildExportPath(req.SessionID, req.Turn)
	if err != nil {
		return Receipt{}, err
	}

	encoded, err := EncodeResultToParquet(req.Result, map[string]string{
		"sqlchat.session_id": req.SessionID,
		"sqlchat.turn":       strconv.Itoa(req.Turn),
		"sqlchat.question":   req.Question,
		"sqlchat.sql":        req.SQL,
	})
	if err != nil {
		return Receipt{}, err
	}

	exportedAt := e.now().UTC()
	info, err := e.store.Create(ctx, storage.Object{
		Key:         key,
		Body:        encoded.Data,
		ContentType: contentTypeParquet,
		Metadata: map[string]string{
			metaSessionID:  req.SessionID,
			metaTurn:       strconv.Itoa(req.Turn),
			metaRows:       strconv.FormatInt(encoded.RecordCount, 10),
			metaExportedAt: exportedAt.Format(time.RFC3339Nano),
		},
	})
	switch {
	case err == nil:
		return Receipt{
			Key:        info.Key,
			Location:   e.store.Location(info.Key),
			Rows:       encoded.RecordCount,
			SizeBytes:  int64(len(encoded.Data)),
			ExportedAt: exportedAt,
		}, nil
	case errors.Is(err, storage.ErrObjectExists):
		return existingReceipt(e.store, info, encoded.RecordCount), nil
	default:
		return Receipt{}, err
	}
}

// existingReceipt describes an earlier export from the metadata stored with
// it, falling back to the object's own attributes.
func existingReceipt(store storage.ObjectStore, info storage.ObjectInfo, rows int64) Receipt {
	receipt := Receipt{
		Key:        info.Key,
		Location:   store.Location(info.Key),
		Rows:       rows,
		SizeBytes:  info.Size,
		ExportedAt: info.LastModified.UTC(),
		Existing:   true,
	}
	if stored, err := strconv.ParseInt(info.Metadata[metaRows], 10, 64); err == nil {
		receipt.Rows = stored
	}
	if stored, err := time.Parse(time.RFC3339Nano, info.Metadata[metaExportedAt]); err == nil {
		receipt.ExportedAt = stored.UTC()
	}
	return receipt
}
