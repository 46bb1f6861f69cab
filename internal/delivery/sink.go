// Package delivery is a local stand-in for the stream delivery pipeline. It
// writes batches of records into a table's hour-partitioned storage layout
// the same way the managed pipeline does.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"

	"github.com/streamhouse/streamhouse/internal/partition"
	"github.com/streamhouse/streamhouse/internal/storage"
	"github.com/streamhouse/streamhouse/internal/warehouse"
)

// Record is one stream record.
type Record struct {
	// PartitionKey selects the shard.
	PartitionKey string
	Data         json.RawMessage
}

// Target describes where a binding's records land.
type Target struct {
	Binding warehouse.InputStreamBinding
	// Prefix is the table's object path prefix within the storage backend.
	Prefix string
}

// SinkConfig configures a Sink.
type SinkConfig struct {
	// Compress applies snappy block compression and a .snappy suffix.
	Compress bool
}

// Sink writes batches to object storage.
type Sink struct {
	store storage.ObjectStorage
	cfg   SinkConfig
}

// NewSink creates a sink over store.
func NewSink(store storage.ObjectStorage, cfg SinkConfig) *Sink {
	return &Sink{store: store, cfg: cfg}
}

// ShardFor maps a partition key onto one of shardCount shards.
func ShardFor(partitionKey string, shardCount int) int {
	if shardCount <= 1 {
		return 0
	}
	return int(murmur3.Sum32([]byte(partitionKey)) % uint32(shardCount))
}

// Deliver writes records received at the given time. Records are grouped by
// shard and each shard's batch becomes one newline-delimited JSON object
// under <prefix><hour key>/. It returns the written object paths.
func (s *Sink) Deliver(ctx context.Context, target Target, records []Record, at time.Time) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	if target.Binding.ShardCount < 1 {
		return nil, fmt.Errorf("delivery: table %s has no shards", target.Binding.Table)
	}

	batches := make(map[int]*bytes.Buffer)
	for i, r := range records {
		if !json.Valid(r.Data) {
			return nil, fmt.Errorf("delivery: record %d is not valid JSON", i)
		}
		shard := ShardFor(r.PartitionKey, target.Binding.ShardCount)
		buf, ok := batches[shard]
		if !ok {
			buf = &bytes.Buffer{}
			batches[shard] = buf
		}
		if err := json.Compact(buf, r.Data); err != nil {
			return nil, fmt.Errorf("delivery: record %d: %w", i, err)
		}
		buf.WriteByte('\n')
	}

	shards := make([]int, 0, len(batches))
	for shard := range batches {
		shards = append(shards, shard)
	}
	sort.Ints(shards)

	at = at.UTC()
	dir := target.Prefix + partition.KeyOf(at).String() + "/"
	paths := make([]string, 0, len(shards))
	for _, shard := range shards {
		data := batches[shard].Bytes()
		name := fmt.Sprintf("%s-%d-%s-%s.json",
			target.Binding.Table, shard, at.Format("2006-01-02-15-04-05"), uuid.New().String())
		if s.cfg.Compress {
			data = snappy.Encode(nil, data)
			name += ".snappy"
		}
		objectPath := dir + name
		if err := s.store.Put(ctx, objectPath, data); err != nil {
			return paths, fmt.Errorf("delivery: write %s: %w", objectPath, err)
		}
		paths = append(paths, objectPath)
	}
	return paths, nil
}

// DecodeObject returns the records of a delivered object.
func DecodeObject(objectPath string, data []byte) ([]json.RawMessage, error) {
	if strings.HasSuffix(objectPath, ".snappy") {
		raw, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("delivery: decompress %s: %w", objectPath, err)
		}
		data = raw
	}
	var out []json.RawMessage
	for _, line := range bytes.Split(bytes.TrimRight(data, "\n"), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		out = append(out, json.RawMessage(line))
	}
	return out, nil
}
