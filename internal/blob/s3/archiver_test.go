package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cardmarket/internal/domain"
	"github.com/alanyoungcy/cardmarket/internal/store/memory"
)

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[path] = b
	return nil
}

func (f *fakeBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return f.Put(ctx, path, data, "")
}

func (f *fakeBlobs) Exists(_ context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[path]
	return ok, nil
}

func TestArchiveSettlementsWritesJSONLAndPurges(t *testing.T) {
	ctx := context.Background()
	blobs := &fakeBlobs{objects: map[string][]byte{}}
	settlements := memory.NewSettlementStore()
	audit := memory.NewAuditStore()

	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seller := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	for i, at := range []time.Time{cutoff.Add(-48 * time.Hour), cutoff.Add(-time.Hour), cutoff.Add(time.Hour)} {
		require.NoError(t, settlements.Record(ctx, domain.Settlement{
			ID: string(rune('a' + i)), AssetID: domain.AssetID(i), Kind: domain.SettlementSale,
			Seller: seller, Amount: 100, SettledAt: at,
		}))
	}

	a := NewArchiver(blobs, blobs, settlements, audit, true)
	n, err := a.ArchiveSettlements(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	path := "archive/settlements/2026-03/20260301T000000Z.jsonl"
	require.Contains(t, blobs.objects, path)
	sc := bufio.NewScanner(bytes.NewReader(blobs.objects[path]))
	var lines int
	for sc.Scan() {
		var s domain.Settlement
		require.NoError(t, json.Unmarshal(sc.Bytes(), &s))
		assert.True(t, s.SettledAt.Before(cutoff))
		lines++
	}
	assert.Equal(t, 2, lines)

	left, err := settlements.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "c", left[0].ID)

	entries, err := audit.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "archive.settlements", entries[0].Event)

	// A second run over the same cutoff finds nothing left to export.
	n, err = a.ArchiveSettlements(ctx, cutoff)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestArchiveFullBatchOfEqualTimestampsMakesProgress(t *testing.T) {
	ctx := context.Background()
	blobs := &fakeBlobs{objects: map[string][]byte{}}
	settlements := memory.NewSettlementStore()
	audit := memory.NewAuditStore()

	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	at := cutoff.Add(-time.Hour)
	seller := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, settlements.Record(ctx, domain.Settlement{
			ID: id, AssetID: domain.AssetID(i), Kind: domain.SettlementSale,
			Seller: seller, Amount: 100, SettledAt: at,
		}))
	}

	a := NewArchiver(blobs, blobs, settlements, audit, true)
	a.batch = 2

	n, err := a.ArchiveSettlements(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	left, err := settlements.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "c", left[0].ID)

	n, err = a.ArchiveSettlements(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = a.ArchiveSettlements(ctx, cutoff)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.Len(t, blobs.objects, 2)
	seen := map[string]int{}
	for _, obj := range blobs.objects {
		sc := bufio.NewScanner(bytes.NewReader(obj))
		for sc.Scan() {
			var s domain.Settlement
			require.NoError(t, json.Unmarshal(sc.Bytes(), &s))
			seen[s.ID]++
		}
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, seen)
}

func TestArchivePathDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	blobs := &fakeBlobs{objects: map[string][]byte{}}
	audit := memory.NewAuditStore()
	require.NoError(t, audit.Log(ctx, "engine_paused", map[string]any{"by": "op"}))

	cutoff := time.Now().Add(time.Minute)
	a := NewArchiver(blobs, blobs, memory.NewSettlementStore(), audit, false)
	_, err := a.ArchiveAudit(ctx, cutoff)
	require.NoError(t, err)
	_, err = a.ArchiveAudit(ctx, cutoff)
	require.NoError(t, err)
	assert.Len(t, blobs.objects, 2)
}

func TestClientObjectKey(t *testing.T) {
	c := &Client{prefix: "cardmarket"}
	assert.Equal(t, "cardmarket/archive/x.jsonl", c.objectKey("/archive/x.jsonl"))
	assert.Equal(t, "archive/x.jsonl", (&Client{}).objectKey("archive/x.jsonl"))
	assert.Equal(t, "https://e2.example.com", normaliseEndpoint("e2.example.com", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("http://minio:9000", true))
}
