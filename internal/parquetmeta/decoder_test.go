package parquetmeta

import (
	"bytes"
	"errors"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"

	"github.com/pithecene-io/colfetch/colfetch"
)

type event struct {
	ID     int64   `parquet:"id"`
	Source string  `parquet:"source,dict"`
	Score  float64 `parquet:"score"`
}

// writeFile encodes two row groups of events.
func writeFile(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[event](&buf)

	sources := []string{"web", "mobile", "batch"}
	for group := range 2 {
		rows := make([]event, 500)
		for i := range rows {
			rows[i] = event{
				ID:     int64(group*len(rows) + i),
				Source: sources[i%len(sources)],
				Score:  float64(i) / 7,
			}
		}
		if _, err := w.Write(rows); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if err := w.Flush(); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return buf.Bytes()
}

func TestDecoder_RealFile(t *testing.T) {
	data := writeFile(t)
	r := colfetch.NewMemoryReader(data)

	s, err := colfetch.Open(t.Context(), "mem://events.parquet", r, r,
		colfetch.WithDecoder(NewDecoder()),
		colfetch.WithChunkSize(256),
	)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = s.Close() }()

	out, err := s.Read(t.Context())
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if out.Layout == nil || len(out.Layout.Blocks) == 0 {
		t.Fatal("expected a block layout")
	}

	for _, res := range out.Blocks {
		b := res.Block
		if len(b.Columns) != 3 {
			t.Errorf("block %d has %d columns, want 3", b.Index, len(b.Columns))
		}
		if !bytes.Equal(res.Buffer.Bytes(), data[b.StartOffset:b.End()]) {
			t.Errorf("block %d bytes differ from the file", b.Index)
		}
		for _, c := range b.Columns {
			if c.FirstReadOffset < 4 || c.FirstReadOffset+c.TotalSize > int64(len(data)) {
				t.Errorf("column %s out of bounds: %+v", c.Path, c)
			}
		}
	}

	paths := map[string]bool{}
	for _, c := range out.Layout.Blocks[0].Columns {
		paths[c.Path] = true
	}
	for _, p := range []string{"id", "source", "score"} {
		if !paths[p] {
			t.Errorf("missing column %q in %v", p, paths)
		}
	}
}

func TestDecoder_RejectsGarbage(t *testing.T) {
	if _, err := NewDecoder().DecodeLayout([]byte{0xff, 0xff, 0xff, 0x01, 0x02}); err == nil {
		t.Error("expected error for garbage metadata")
	}
}

func TestDecoder_GarbageFooterIsMalformed(t *testing.T) {
	obj := append([]byte("PAR1"), bytes.Repeat([]byte{0}, 64)...)
	meta := []byte{0xff, 0xff, 0xff, 0x01, 0x02}
	obj = append(obj, meta...)
	obj = append(obj, byte(len(meta)), 0, 0, 0)
	obj = append(obj, "PAR1"...)

	r := colfetch.NewMemoryReader(obj)
	s, err := colfetch.Open(t.Context(), "mem://bad", r, r, colfetch.WithDecoder(NewDecoder()))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()

	if _, err := s.ReadLayout(t.Context()); !errors.Is(err, colfetch.ErrMalformedMetadata) {
		t.Errorf("err = %v, want ErrMalformedMetadata", err)
	}
}

func TestBlocks(t *testing.T) {
	md := &format.FileMetaData{
		RowGroups: []format.RowGroup{
			{Columns: []format.ColumnChunk{
				{MetaData: format.ColumnMetaData{PathInSchema: []string{"a"}, DataPageOffset: 4, TotalCompressedSize: 10}},
				{MetaData: format.ColumnMetaData{PathInSchema: []string{"b", "c"}, DictionaryPageOffset: 14, DataPageOffset: 20, TotalCompressedSize: 16}},
			}},
			{},
		},
	}

	blocks, err := Blocks(md)
	if err != nil {
		t.Fatalf("Blocks failed: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}

	b := blocks[0]
	if b.StartOffset != 4 || b.TotalSize != 26 {
		t.Errorf("block span = (%d, %d), want (4, 26)", b.StartOffset, b.TotalSize)
	}
	if c := b.Columns[1]; c.Path != "b.c" || c.FirstReadOffset != 14 || c.TotalSize != 16 {
		t.Errorf("dictionary column = %+v", c)
	}
	if blocks[1].Index != 1 || len(blocks[1].Columns) != 0 || blocks[1].TotalSize != 0 {
		t.Errorf("empty row group = %+v", blocks[1])
	}
}

func TestBlocks_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		chunk format.ColumnChunk
	}{
		{"negative size", format.ColumnChunk{MetaData: format.ColumnMetaData{DataPageOffset: 4, TotalCompressedSize: -1}}},
		{"negative offset", format.ColumnChunk{MetaData: format.ColumnMetaData{DataPageOffset: -4, TotalCompressedSize: 8}}},
		{"external file", format.ColumnChunk{FilePath: "other.parquet", MetaData: format.ColumnMetaData{DataPageOffset: 4, TotalCompressedSize: 8}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := &format.FileMetaData{RowGroups: []format.RowGroup{{Columns: []format.ColumnChunk{tt.chunk}}}}
			if _, err := Blocks(md); err == nil {
				t.Error("expected error")
			}
		})
	}
}
