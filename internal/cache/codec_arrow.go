package cache

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

const (
	metaFormat     = "semcache.format"
	metaVersion    = "semcache.version"
	metaSnapshotID = "semcache.snapshot_id"
	metaCreatedAt  = "semcache.created_at"
	metaTTL        = "semcache.ttl_ns"

	// arrowBatchRows bounds the size of one record batch.
	arrowBatchRows = 4096
)

// ArrowCodec stores snapshots as an Arrow IPC stream with one row per entry.
// Vector components are written as raw float64 values, so every value,
// including NaN and infinities, survives a round trip bit for bit.
type ArrowCodec struct {
	// Allocator defaults to memory.DefaultAllocator.
	Allocator memory.Allocator
}

var snapshotFields = []arrow.Field{
	{Name: "key", Type: arrow.BinaryTypes.String},
	{Name: "vector", Type: arrow.ListOf(arrow.PrimitiveTypes.Float64), Nullable: true},
	{Name: "inserted_at", Type: arrow.FixedWidthTypes.Timestamp_ns},
}

// Format implements Codec.
func (ArrowCodec) Format() Format { return FormatArrow }

func (c ArrowCodec) allocator() memory.Allocator {
	if c.Allocator != nil {
		return c.Allocator
	}
	return memory.DefaultAllocator
}

func snapshotSchema(snap *Snapshot) *arrow.Schema {
	md := arrow.NewMetadata(
		[]string{metaFormat, metaVersion, metaSnapshotID, metaCreatedAt, metaTTL},
		[]string{
			snapshotFormatName,
			strconv.Itoa(snapshotVersion),
			snap.ID,
			snap.CreatedAt.UTC().Format(time.RFC3339Nano),
			strconv.FormatInt(int64(snap.TTL), 10),
		},
	)
	return arrow.NewSchema(snapshotFields, &md)
}

// Encode implements Codec.
func (c ArrowCodec) Encode(w io.Writer, snap *Snapshot) error {
	schema := snapshotSchema(snap)
	mem := c.allocator()

	writer := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	defer writer.Close()

	builder := array.NewRecordBuilder(mem, schema)
	defer builder.Release()

	keys := builder.Field(0).(*array.StringBuilder)
	vectors := builder.Field(1).(*array.ListBuilder)
	values := vectors.ValueBuilder().(*array.Float64Builder)
	times := builder.Field(2).(*array.TimestampBuilder)

	flush := func() error {
		record := builder.NewRecord()
		defer record.Release()
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write arrow record: %w", err)
		}
		return nil
	}

	rows := 0
	for _, e := range snap.Entries {
		keys.Append(e.Key)
		if e.Vector == nil {
			vectors.AppendNull()
		} else {
			vectors.Append(true)
			values.AppendValues(e.Vector, nil)
		}
		times.Append(arrow.Timestamp(e.InsertedAt.UnixNano()))

		rows++
		if rows == arrowBatchRows {
			if err := flush(); err != nil {
				return err
			}
			rows = 0
		}
	}
	// An empty snapshot still carries one zero-row batch.
	if rows > 0 || len(snap.Entries) == 0 {
		if err := flush(); err != nil {
			return err
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("close arrow writer: %w", err)
	}
	return nil
}

// Decode implements Codec.
func (c ArrowCodec) Decode(r io.Reader) (*Snapshot, error) {
	reader, err := ipc.NewReader(r, ipc.WithAllocator(c.allocator()))
	if err != nil {
		return nil, fmt.Errorf("open arrow stream: %w", err)
	}
	defer reader.Release()

	snap, err := snapshotFromSchema(reader.Schema())
	if err != nil {
		return nil, err
	}

	for reader.Next() {
		if err := appendRecord(snap, reader.Record()); err != nil {
			return nil, err
		}
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("read arrow record: %w", err)
	}
	return snap, nil
}

func snapshotFromSchema(schema *arrow.Schema) (*Snapshot, error) {
	if len(schema.Fields()) != len(snapshotFields) {
		return nil, fmt.Errorf("arrow snapshot: expected %d columns, got %d", len(snapshotFields), len(schema.Fields()))
	}
	for i, f := range schema.Fields() {
		want := snapshotFields[i]
		if f.Name != want.Name || !arrow.TypeEqual(f.Type, want.Type) {
			return nil, fmt.Errorf("arrow snapshot: column %d is %s %s, want %s %s", i, f.Name, f.Type, want.Name, want.Type)
		}
	}

	md := schema.Metadata()
	meta := func(key string) string {
		if i := md.FindKey(key); i >= 0 {
			return md.Values()[i]
		}
		return ""
	}

	if got := meta(metaFormat); got != snapshotFormatName {
		return nil, fmt.Errorf("arrow snapshot: unexpected format %q", got)
	}
	version, err := strconv.Atoi(meta(metaVersion))
	if err != nil || version < 1 || version > snapshotVersion {
		return nil, fmt.Errorf("arrow snapshot: unsupported version %q", meta(metaVersion))
	}

	snap := &Snapshot{ID: meta(metaSnapshotID)}
	if v := meta(metaCreatedAt); v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			snap.CreatedAt = t
		}
	}
	if v := meta(metaTTL); v != "" {
		if ns, err := strconv.ParseInt(v, 10, 64); err == nil {
			snap.TTL = time.Duration(ns)
		}
	}
	return snap, nil
}

func appendRecord(snap *Snapshot, record arrow.Record) error {
	keys, ok := record.Column(0).(*array.String)
	if !ok {
		return fmt.Errorf("arrow snapshot: key column has type %s", record.Column(0).DataType())
	}
	vectors, ok := record.Column(1).(*array.List)
	if !ok {
		return fmt.Errorf("arrow snapshot: vector column has type %s", record.Column(1).DataType())
	}
	values, ok := vectors.ListValues().(*array.Float64)
	if !ok {
		return fmt.Errorf("arrow snapshot: vector values have type %s", vectors.ListValues().DataType())
	}
	times, ok := record.Column(2).(*array.Timestamp)
	if !ok {
		return fmt.Errorf("arrow snapshot: inserted_at column has type %s", record.Column(2).DataType())
	}

	raw := values.Float64Values()
	for i := 0; i < int(record.NumRows()); i++ {
		if keys.IsNull(i) || times.IsNull(i) {
			return fmt.Errorf("arrow snapshot: row %d has a null key or timestamp", i)
		}

		var vec []float64
		if vectors.IsValid(i) {
			start, end := vectors.ValueOffsets(i)
			vec = make([]float64, end-start)
			copy(vec, raw[start:end])
		}

		snap.Entries = append(snap.Entries, Entry{
			Key:        strings.Clone(keys.Value(i)),
			Vector:     vec,
			InsertedAt: time.Unix(0, int64(times.Value(i))),
		})
	}
	return nil
}
