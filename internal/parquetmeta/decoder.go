// Package parquetmeta decodes Parquet footer metadata into colfetch block
// layouts.
package parquetmeta

import (
	"fmt"
	"strings"

	"github.com/parquet-go/parquet-go/encoding/thrift"
	"github.com/parquet-go/parquet-go/format"

	"github.com/pithecene-io/colfetch/colfetch"
)

// Decoder implements colfetch.LayoutDecoder for Parquet footers.
// Each row group becomes one block and each column chunk one column.
type Decoder struct {
	protocol thrift.CompactProtocol
}

// NewDecoder creates a Parquet layout decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode parses thrift-compact FileMetaData.
func (d *Decoder) Decode(metadata []byte) (*format.FileMetaData, error) {
	md := new(format.FileMetaData)
	if err := thrift.Unmarshal(&d.protocol, metadata, md); err != nil {
		return nil, fmt.Errorf("parquetmeta: decoding file metadata: %w", err)
	}
	return md, nil
}

// DecodeLayout implements colfetch.LayoutDecoder.
func (d *Decoder) DecodeLayout(metadata []byte) ([]colfetch.BlockDescriptor, error) {
	md, err := d.Decode(metadata)
	if err != nil {
		return nil, err
	}
	return Blocks(md)
}

// Blocks converts decoded metadata to block descriptors.
//
// A column's bytes start at its dictionary page when it has one, otherwise
// at its first data page, and span TotalCompressedSize bytes. A block runs
// from its first column byte to its last.
func Blocks(md *format.FileMetaData) ([]colfetch.BlockDescriptor, error) {
	blocks := make([]colfetch.BlockDescriptor, 0, len(md.RowGroups))
	for i := range md.RowGroups {
		b, err := block(i, &md.RowGroups[i])
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

func block(index int, rg *format.RowGroup) (colfetch.BlockDescriptor, error) {
	b := colfetch.BlockDescriptor{
		Index:   index,
		Columns: make([]colfetch.ColumnDescriptor, 0, len(rg.Columns)),
	}
	if len(rg.Columns) == 0 {
		return b, nil
	}

	start, end := int64(-1), int64(0)
	for j := range rg.Columns {
		cc := &rg.Columns[j]
		if cc.FilePath != "" {
			return b, fmt.Errorf("parquetmeta: row group %d column %d lives in external file %q", index, j, cc.FilePath)
		}
		c, err := column(&cc.MetaData)
		if err != nil {
			return b, fmt.Errorf("parquetmeta: row group %d column %d: %w", index, j, err)
		}
		if start < 0 || c.FirstReadOffset < start {
			start = c.FirstReadOffset
		}
		end = max(end, c.FirstReadOffset+c.TotalSize)
		b.Columns = append(b.Columns, c)
	}

	b.StartOffset = start
	b.TotalSize = end - start
	return b, nil
}

func column(md *format.ColumnMetaData) (colfetch.ColumnDescriptor, error) {
	first := md.DataPageOffset
	if md.DictionaryPageOffset > 0 && md.DictionaryPageOffset < md.DataPageOffset {
		first = md.DictionaryPageOffset
	}
	if first < 0 || md.TotalCompressedSize < 0 {
		return colfetch.ColumnDescriptor{}, fmt.Errorf("negative offset %d or size %d", first, md.TotalCompressedSize)
	}
	return colfetch.ColumnDescriptor{
		Path:            strings.Join(md.PathInSchema, "."),
		StartOffset:     first,
		TotalSize:       md.TotalCompressedSize,
		FirstReadOffset: first,
	}, nil
}

var _ colfetch.LayoutDecoder = (*Decoder)(nil)
