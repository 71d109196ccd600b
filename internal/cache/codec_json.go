package cache

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/goccy/go-json"
)

// JSONCodec stores snapshots as a single JSON document. It is readable by
// hand but cannot carry NaN or infinite vector components.
type JSONCodec struct{}

type jsonSnapshot struct {
	Format     string      `json:"format"`
	Version    int         `json:"version"`
	SnapshotID string      `json:"snapshot_id"`
	CreatedAt  time.Time   `json:"created_at"`
	TTLSeconds float64     `json:"ttl_seconds"`
	Entries    []jsonEntry `json:"entries"`
}

type jsonEntry struct {
	Key        string    `json:"key"`
	Vector     []float64 `json:"vector"`
	InsertedAt int64     `json:"inserted_at"` // unix nanoseconds
}

// Format implements Codec.
func (JSONCodec) Format() Format { return FormatJSON }

// Encode implements Codec.
func (JSONCodec) Encode(w io.Writer, snap *Snapshot) error {
	doc := jsonSnapshot{
		Format:     snapshotFormatName,
		Version:    snapshotVersion,
		SnapshotID: snap.ID,
		CreatedAt:  snap.CreatedAt.UTC(),
		TTLSeconds: snap.TTL.Seconds(),
		Entries:    make([]jsonEntry, len(snap.Entries)),
	}
	for i, e := range snap.Entries {
		for _, x := range e.Vector {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return fmt.Errorf("entry %q: non-finite component not representable in json", e.Key)
			}
		}
		doc.Entries[i] = jsonEntry{
			Key:        e.Key,
			Vector:     e.Vector,
			InsertedAt: e.InsertedAt.UnixNano(),
		}
	}

	if err := json.NewEncoder(w).Encode(&doc); err != nil {
		return fmt.Errorf("encode json snapshot: %w", err)
	}
	return nil
}

// Decode implements Codec.
func (JSONCodec) Decode(r io.Reader) (*Snapshot, error) {
	var doc jsonSnapshot
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode json snapshot: %w", err)
	}
	if doc.Format != snapshotFormatName {
		return nil, fmt.Errorf("decode json snapshot: unexpected format %q", doc.Format)
	}
	if doc.Version < 1 || doc.Version > snapshotVersion {
		return nil, fmt.Errorf("decode json snapshot: unsupported version %d", doc.Version)
	}

	snap := &Snapshot{
		ID:        doc.SnapshotID,
		CreatedAt: doc.CreatedAt,
		TTL:       time.Duration(doc.TTLSeconds * float64(time.Second)),
		Entries:   make([]Entry, len(doc.Entries)),
	}
	for i, e := range doc.Entries {
		snap.Entries[i] = Entry{
			Key:        e.Key,
			Vector:     e.Vector,
			InsertedAt: time.Unix(0, e.InsertedAt),
		}
	}
	return snap, nil
}
