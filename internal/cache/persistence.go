package cache

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Format identifies a snapshot encoding.
type Format string

const (
	FormatArrow Format = "arrow" // Arrow IPC stream, exact float64 round trip
	FormatJSON  Format = "json"  // JSON document, finite values only
)

const (
	snapshotFormatName = "semcache"
	snapshotVersion    = 1
)

// ErrUnknownFormat is returned when a snapshot's leading bytes match no codec.
var ErrUnknownFormat = errors.New("unrecognized snapshot format")

// Snapshot is the serializable view of a cache.
type Snapshot struct {
	ID        string
	CreatedAt time.Time
	TTL       time.Duration
	Entries   []Entry
}

// NewSnapshot collects the entries of store that are alive at now.
// Vectors are shared with the store; the snapshot must be treated as
// read-only.
func NewSnapshot(store *Store, policy Policy, now time.Time) *Snapshot {
	all := store.Snapshot()
	entries := make([]Entry, 0, len(all))
	for _, e := range all {
		if policy.IsAlive(e, now) {
			entries = append(entries, *e)
		}
	}
	return &Snapshot{
		ID:        uuid.NewString(),
		CreatedAt: now,
		TTL:       policy.TTL,
		Entries:   entries,
	}
}

// Codec encodes and decodes snapshots.
type Codec interface {
	Format() Format
	Encode(w io.Writer, snap *Snapshot) error
	Decode(r io.Reader) (*Snapshot, error)
}

// CodecFor returns the codec for f.
func CodecFor(f Format) (Codec, error) {
	switch f {
	case FormatArrow, "":
		return ArrowCodec{}, nil
	case FormatJSON:
		return JSONCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported snapshot format: %q", f)
	}
}

// ReadSnapshot decodes a snapshot in any supported format.
//
// Arrow IPC streams start with the 0xFFFFFFFF continuation marker; JSON
// documents start with '{' after optional whitespace.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	br := bufio.NewReader(r)
	codec, err := detectCodec(br)
	if err != nil {
		return nil, err
	}
	return codec.Decode(br)
}

func detectCodec(br *bufio.Reader) (Codec, error) {
	head, err := br.Peek(4)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read snapshot header: %w", err)
	}
	if len(head) == 4 && bytes.Equal(head, []byte{0xff, 0xff, 0xff, 0xff}) {
		return ArrowCodec{}, nil
	}
	trimmed := bytes.TrimLeft(head, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return JSONCodec{}, nil
	}
	if len(head) > 0 && len(trimmed) == 0 {
		// Leading whitespace longer than the peek window.
		return JSONCodec{}, nil
	}
	return nil, ErrUnknownFormat
}

// WriteFileAtomic writes a file through fn so that path either keeps its old
// content or holds the complete new content, never a torn write.
//
// Data goes to a temporary file in the same directory which is synced and
// then renamed over path.
func WriteFileAtomic(path string, fn func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = fn(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	syncDir(dir)
	return nil
}

// syncDir makes the rename durable where the platform allows it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
