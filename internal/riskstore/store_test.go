package riskstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addr = "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"

func sampleRisk() *RiskRecord {
	return &RiskRecord{
		Score:       42,
		Band:        "MEDIUM",
		BandIndex:   1,
		LastUpdated: 1700000000,
		Signature:   "0x" + "ab",
		Payload: SignedPayload{
			Subject:   addr,
			Score:     42,
			Band:      1,
			Timestamp: 1700000000,
			Expiry:    1700086400,
			Nonce:     "0x" + "00",
		},
		Rationale: "steady revenue",
	}
}

func samplePool(id string) *PoolMetrics {
	score := uint8(42)
	return &PoolMetrics{
		ID:        id,
		Name:      "Pool " + id,
		Symbol:    "P" + id,
		TVL:       "1500000",
		APY:       "10.50",
		Investors: 12,
		Risk:      "MEDIUM",
		RiskScore: &score,
		UpdatedAt: time.Unix(1700000000, 0).UTC(),
	}
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing keys return nil", func(t *testing.T) {
		b, err := s.GetBusiness(ctx, "0x0000000000000000000000000000000000000001")
		require.NoError(t, err)
		assert.Nil(t, b)

		r, err := s.GetRisk(ctx, "0x0000000000000000000000000000000000000001")
		require.NoError(t, err)
		assert.Nil(t, r)

		p, err := s.GetPool(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("business round trip is case insensitive", func(t *testing.T) {
		created := time.Unix(1690000000, 0).UTC()
		err := s.PutBusiness(ctx, &BusinessProfile{
			Address:           addr,
			Name:              "Acme",
			Industry:          "retail",
			MonthlyRevenue:    125000.5,
			RevenueVolatility: 12.5,
			ContactEmail:      "ops@acme.test",
			CreatedAt:         created,
		})
		require.NoError(t, err)

		got, err := s.GetBusiness(ctx, "0xabcdef0123456789abcdef0123456789abcdef01")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Acme", got.Name)
		assert.Equal(t, 125000.5, got.MonthlyRevenue)
		assert.True(t, created.Equal(got.CreatedAt))
	})

	t.Run("risk round trip", func(t *testing.T) {
		require.NoError(t, s.PutRisk(ctx, addr, sampleRisk()))

		got, err := s.GetRisk(ctx, addr)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, *sampleRisk(), *got)
	})

	t.Run("risk overwrite keeps latest", func(t *testing.T) {
		next := sampleRisk()
		next.Score = 80
		next.Band = "HIGH"
		require.NoError(t, s.PutRisk(ctx, addr, next))

		got, err := s.GetRisk(ctx, addr)
		require.NoError(t, err)
		assert.Equal(t, uint8(80), got.Score)
		assert.Equal(t, "HIGH", got.Band)
	})

	t.Run("pools listed by id", func(t *testing.T) {
		require.NoError(t, s.PutPool(ctx, samplePool("b")))
		require.NoError(t, s.PutPool(ctx, samplePool("a")))
		unrated := samplePool("c")
		unrated.RiskScore = nil
		unrated.Risk = "UNRATED"
		require.NoError(t, s.PutPool(ctx, unrated))

		pools, err := s.ListPools(ctx)
		require.NoError(t, err)
		require.Len(t, pools, 3)
		assert.Equal(t, "a", pools[0].ID)
		assert.Equal(t, "b", pools[1].ID)
		assert.Nil(t, pools[2].RiskScore)

		got, err := s.GetPool(ctx, "a")
		require.NoError(t, err)
		require.NotNil(t, got.RiskScore)
		assert.Equal(t, uint8(42), *got.RiskScore)
		assert.True(t, samplePool("a").UpdatedAt.Equal(got.UpdatedAt))
	})

	t.Run("empty keys rejected", func(t *testing.T) {
		assert.ErrorIs(t, s.PutBusiness(ctx, &BusinessProfile{Address: "  "}), ErrInvalidKey)
		assert.ErrorIs(t, s.PutRisk(ctx, "", sampleRisk()), ErrInvalidKey)
		assert.ErrorIs(t, s.PutPool(ctx, &PoolMetrics{}), ErrInvalidKey)
	})
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)

	require.NoError(t, s.Close())
	_, err := s.GetRisk(context.Background(), addr)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.PutPool(ctx, samplePool("a")))

	got, err := s.GetPool(ctx, "a")
	require.NoError(t, err)
	*got.RiskScore = 99
	got.Name = "mutated"

	again, err := s.GetPool(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, uint8(42), *again.RiskScore)
	assert.Equal(t, "Pool a", again.Name)
}

func TestJSONStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.json")
	s, err := OpenJSONStore(path, nil)
	require.NoError(t, err)
	exerciseStore(t, s)
	require.NoError(t, s.Close())

	// A second process opening the same file sees every write.
	reopened, err := OpenJSONStore(path, nil)
	require.NoError(t, err)
	r, err := reopened.GetRisk(context.Background(), addr)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, uint8(80), r.Score)

	snap, err := ReadSnapshotFile(path)
	require.NoError(t, err)
	assert.Len(t, snap.Pools, 3)
	assert.Contains(t, snap.Risks, AddressKey(addr))
}

func TestJSONStore_MalformedFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, err := OpenJSONStore(path, nil)
	require.NoError(t, err)

	r, err := s.GetRisk(context.Background(), addr)
	require.NoError(t, err)
	assert.Nil(t, r)

	require.NoError(t, s.PutRisk(context.Background(), addr, sampleRisk()))
	snap, err := ReadSnapshotFile(path)
	require.NoError(t, err)
	assert.Len(t, snap.Risks, 1)
}

func TestJSONStore_PartialDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"risks":{}}`), 0o600))

	s, err := OpenJSONStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.PutPool(context.Background(), samplePool("a")))
	require.NoError(t, s.PutBusiness(context.Background(), &BusinessProfile{Address: addr, Name: "Acme"}))
}

func TestJSONStore_NullEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	doc := `{"businesses":{"0xabc":null},"risks":{"0xabc":null},"pools":{"a":null}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	s, err := OpenJSONStore(path, nil)
	require.NoError(t, err)
	ctx := context.Background()

	b, err := s.GetBusiness(ctx, "0xABC")
	require.NoError(t, err)
	assert.Nil(t, b)

	r, err := s.GetRisk(ctx, "0xABC")
	require.NoError(t, err)
	assert.Nil(t, r)

	p, err := s.GetPool(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, p)

	pools, err := s.ListPools(ctx)
	require.NoError(t, err)
	assert.Empty(t, pools)
}

func TestJSONStore_WriteFailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	s, err := OpenJSONStore(path, nil)
	require.NoError(t, err)

	// Replacing the data directory with a file makes the rewrite fail.
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, nil, 0o600))
	t.Cleanup(func() { _ = os.Remove(dir) })

	err = s.PutRisk(context.Background(), addr, sampleRisk())
	require.Error(t, err)

	r, err := s.GetRisk(context.Background(), addr)
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestBoltStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk.db")
	s, err := OpenBoltStore(path)
	require.NoError(t, err)
	exerciseStore(t, s)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Len(t, snap.Pools, 3)
	assert.Len(t, snap.Businesses, 1)
	require.NoError(t, s.Close())

	reopened, err := OpenBoltStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	b, err := reopened.GetBusiness(context.Background(), addr)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "Acme", b.Name)
}

func TestBoltStore_Closed(t *testing.T) {
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "risk.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.GetRisk(context.Background(), addr)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	snap := NewSnapshot()
	snap.Businesses[AddressKey(addr)] = &BusinessProfile{Name: "Acme"}
	snap.Risks[AddressKey(addr)] = sampleRisk()
	snap.Pools["a"] = samplePool("a")

	dst := NewMemoryStore()
	stats, err := Import(ctx, snap, dst)
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Businesses: 1, Risks: 1, Pools: 1}, stats)

	b, err := dst.GetBusiness(ctx, addr)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, AddressKey(addr), b.Address)

	_, err = Import(ctx, snap, closedStore())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestImport_SkipsNilEntries(t *testing.T) {
	snap := &Snapshot{
		Businesses: map[string]*BusinessProfile{"0xabc": nil},
		Risks:      map[string]*RiskRecord{"0xabc": nil},
		Pools:      map[string]*PoolMetrics{"a": nil, "b": samplePool("b")},
	}

	stats, err := Import(context.Background(), snap, NewMemoryStore())
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Pools: 1}, stats)
}

func closedStore() Store {
	s := NewMemoryStore()
	_ = s.Close()
	return s
}
