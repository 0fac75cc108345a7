package writer

import (
	"bytes"
	"fmt"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"exchangeflow/models"
)

type orderBookRecord struct {
	Exchange  string  `parquet:"name=exchange, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol    string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp int64   `parquet:"name=timestamp, type=INT64"`
	Side      string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price     float64 `parquet:"name=price, type=DOUBLE"`
	Amount    float64 `parquet:"name=amount, type=DOUBLE"`
	Level     int32   `parquet:"name=level, type=INT32"`
}

type tradeRecord struct {
	Exchange  string  `parquet:"name=exchange, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol    string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	ID        string  `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp int64   `parquet:"name=timestamp, type=INT64"`
	Side      string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price     float64 `parquet:"name=price, type=DOUBLE"`
	Amount    float64 `parquet:"name=amount, type=DOUBLE"`
	Cost      float64 `parquet:"name=cost, type=DOUBLE"`
}

type tickerRecord struct {
	Exchange    string  `parquet:"name=exchange, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol      string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp   int64   `parquet:"name=timestamp, type=INT64"`
	Bid         float64 `parquet:"name=bid, type=DOUBLE"`
	Ask         float64 `parquet:"name=ask, type=DOUBLE"`
	Last        float64 `parquet:"name=last, type=DOUBLE"`
	High        float64 `parquet:"name=high, type=DOUBLE"`
	Low         float64 `parquet:"name=low, type=DOUBLE"`
	BaseVolume  float64 `parquet:"name=base_volume, type=DOUBLE"`
	QuoteVolume float64 `parquet:"name=quote_volume, type=DOUBLE"`
	Percentage  float64 `parquet:"name=percentage, type=DOUBLE"`
}

// memoryFileWriter implements source.ParquetFile over an in-memory buffer.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) { return mfw, nil }
func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error)   { return mfw, nil }

// Seek is only consulted for the current size while writing.
func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error)  { return mfw.buffer.Read(b) }
func (mfw *memoryFileWriter) Write(b []byte) (int, error) { return mfw.buffer.Write(b) }
func (mfw *memoryFileWriter) Close() error                { return nil }
func (mfw *memoryFileWriter) Bytes() []byte               { return mfw.buffer.Bytes() }

// records converts the rows of batch to the parquet schema of its kind.
func records(batch models.RowBatch) (schema any, rows []any, err error) {
	switch batch.Kind {
	case models.DataOrderBook:
		for _, r := range batch.OrderBooks {
			rows = append(rows, orderBookRecord{
				Exchange:  r.Exchange,
				Symbol:    r.Symbol,
				Timestamp: r.Timestamp,
				Side:      r.Side,
				Price:     r.Price,
				Amount:    r.Amount,
				Level:     int32(r.Level),
			})
		}
		return new(orderBookRecord), rows, nil
	case models.DataTrades:
		for _, r := range batch.Trades {
			rows = append(rows, tradeRecord(r))
		}
		return new(tradeRecord), rows, nil
	case models.DataTickers:
		for _, r := range batch.Tickers {
			rows = append(rows, tickerRecord(r))
		}
		return new(tickerRecord), rows, nil
	}
	return nil, nil, fmt.Errorf("unknown batch kind %q", batch.Kind)
}

// encodeParquet writes batch as a snappy-compressed parquet file.
func encodeParquet(batch models.RowBatch) ([]byte, error) {
	schema, rows, err := records(batch)
	if err != nil {
		return nil, err
	}

	fw := newMemoryFileWriter()
	pw, err := writer.NewParquetWriter(fw, schema, 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, r := range rows {
		if err := pw.Write(r); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), nil
}
