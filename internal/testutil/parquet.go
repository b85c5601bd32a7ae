// Package testutil writes small parquet fixtures shaped like the files the
// collectors land, for exercising query templates against a real engine.
package testutil

import (
	"os"
	"testing"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

// TradeRecord mirrors the kalshi trade file schema (prices in integer cents).
type TradeRecord struct {
	Ticker string `parquet:"name=market_ticker, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price  int64  `parquet:"name=price, type=INT64"`
	Count  int64  `parquet:"name=count, type=INT64"`
	Side   string `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Ts     int64  `parquet:"name=ts, type=INT64"`
}

// TickerRecord mirrors the kalshi snapshot file schema.
type TickerRecord struct {
	Ticker       string `parquet:"name=market_ticker, type=BYTE_ARRAY, convertedtype=UTF8"`
	YesBid       int64  `parquet:"name=yes_bid, type=INT64"`
	YesAsk       int64  `parquet:"name=yes_ask, type=INT64"`
	NoBid        int64  `parquet:"name=no_bid, type=INT64"`
	NoAsk        int64  `parquet:"name=no_ask, type=INT64"`
	LastPrice    int64  `parquet:"name=last_price, type=INT64"`
	Volume       int64  `parquet:"name=volume, type=INT64"`
	OpenInterest int64  `parquet:"name=open_interest, type=INT64"`
	Ts           int64  `parquet:"name=ts, type=INT64"`
}

// fileWriter adapts *os.File to the ParquetFile interface.
type fileWriter struct {
	f *os.File
}

func (w *fileWriter) Create(name string) (source.ParquetFile, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	return &fileWriter{f: f}, nil
}

func (w *fileWriter) Open(name string) (source.ParquetFile, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return &fileWriter{f: f}, nil
}

func (w *fileWriter) Seek(offset int64, whence int) (int64, error) {
	return w.f.Seek(offset, whence)
}

func (w *fileWriter) Read(b []byte) (int, error) {
	return w.f.Read(b)
}

func (w *fileWriter) Write(b []byte) (int, error) {
	return w.f.Write(b)
}

func (w *fileWriter) Close() error {
	return w.f.Close()
}

// WriteParquet writes rows of the prototype's schema to path.
func WriteParquet(t *testing.T, path string, prototype any, rows []any) {
	t.Helper()

	fw, err := (&fileWriter{}).Create(path)
	if err != nil {
		t.Fatalf("create parquet fixture %s: %v", path, err)
	}
	pw, err := writer.NewParquetWriter(fw, prototype, 1)
	if err != nil {
		t.Fatalf("new parquet writer: %v", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			t.Fatalf("write fixture row: %v", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		t.Fatalf("finalize parquet fixture: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("close parquet fixture: %v", err)
	}
}
