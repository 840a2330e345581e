package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/sqlchat/sqlchat/internal/query"
)

var ErrEmptyResult = errors.New("result has no rows to export")

type ParquetEncodeResult struct {
	Data        []byte
	RecordCount int64
}

// exportRow keeps each row as a JSON array so duplicate column names from
// joins survive the export.
type exportRow struct {
	RowIndex    int64  `parquet:"row_index"`
	RowJSON     string `parquet:"row_json"`
	ColumnsJSON string `parquet:"columns_json"`
}

func EncodeResultToParquet(result query.Result, metadata map[string]string) (ParquetEncodeResult, error) {
	if len(result.Rows) == 0 {
		return ParquetEncodeResult{}, ErrEmptyResult
	}
	columnsJSON, err := json.Marshal(result.Columns)
	if err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("marshal columns: %w", err)
	}

	rows := make([]exportRow, 0, len(result.Rows))
	for i, values := range result.Rows {
		rowJSON, err := json.Marshal(values)
		if err != nil {
			return ParquetEncodeResult{}, fmt.Errorf("marshal row %d: %w", i, err)
		}
		rows = append(rows, exportRow{
			RowIndex:    int64(i),
			RowJSON:     string(rowJSON),
			ColumnsJSON: string(columnsJSON),
		})
	}

	options := make([]parquet.WriterOption, 0, len(metadata))
	for key, value := range metadata {
		options = append(options, parquet.KeyValueMetadata(key, value))
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[exportRow](buf, options...)
	if _, err := writer.Write(rows); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return ParquetEncodeResult{
		Data:        buf.Bytes(),
		RecordCount: int64(len(rows)),
	}, nil
}
