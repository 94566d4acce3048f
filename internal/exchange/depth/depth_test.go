package depth

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parvezahmmedmahir/footprint/internal/types"
)

var tick = types.PriceFromFloat(0.01)

func snapshotUpdate(id uint64, bids, asks []DeOrder) Update {
	return Update{Kind: Snapshot, Payload: DepthPayload{LastUpdateID: id, Time: id, Bids: bids, Asks: asks}}
}

func diffUpdate(id uint64, bids, asks []DeOrder) Update {
	return Update{Kind: Diff, Payload: DepthPayload{LastUpdateID: id, Time: id, Bids: bids, Asks: asks}}
}

func TestDeOrderDecodeForms(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"string array", `["100.5","2.25"]`},
		{"numeric array", `[100.5, 2.25]`},
		{"object form", `{"0":"100.5","1":"2.25"}`},
		{"mixed object", `{"0":100.5,"1":"2.25"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var o DeOrder
			require.NoError(t, json.Unmarshal([]byte(tc.input), &o))
			require.Equal(t, 100.5, o.Price)
			require.Equal(t, 2.25, o.Qty)
		})
	}
}

func TestDeOrderDecodeInvalid(t *testing.T) {
	for _, input := range []string{`["100.5"]`, `{"0":"100.5"}`, `"100.5"`, `["abc","1"]`} {
		var o DeOrder
		require.Error(t, json.Unmarshal([]byte(input), &o), "input %s", input)
	}
}

func TestDiffRemovesZeroQtyLevels(t *testing.T) {
	cache := NewLocalDepthCache()
	cache.Update(snapshotUpdate(1, []DeOrder{{Price: 100, Qty: 2}, {Price: 99, Qty: 1}}, nil), tick)

	cache.Update(diffUpdate(2, []DeOrder{{Price: 100, Qty: 0}}, nil), tick)

	d := cache.Snapshot()
	require.NotContains(t, d.Bids, types.PriceFromFloat(100))
	require.Contains(t, d.Bids, types.PriceFromFloat(99))
}

func TestDiffInsertsAndUpdatesLevels(t *testing.T) {
	cache := NewLocalDepthCache()
	cache.Update(snapshotUpdate(1, []DeOrder{{Price: 100, Qty: 2}}, []DeOrder{{Price: 101, Qty: 3}}), tick)

	cache.Update(diffUpdate(2, []DeOrder{{Price: 100, Qty: 5}, {Price: 99.5, Qty: 1}}, nil), tick)

	d := cache.Snapshot()
	require.Equal(t, 5.0, d.Bids[types.PriceFromFloat(100)])
	require.Equal(t, 1.0, d.Bids[types.PriceFromFloat(99.5)])
	require.Equal(t, 3.0, d.Asks[types.PriceFromFloat(101)])
	require.Equal(t, uint64(2), cache.LastUpdateID)
}

func TestSnapshotReplacesAll(t *testing.T) {
	cache := NewLocalDepthCache()
	cache.Update(snapshotUpdate(1, []DeOrder{{Price: 100, Qty: 2}, {Price: 99, Qty: 1}}, []DeOrder{{Price: 101, Qty: 3}}), tick)

	cache.Update(snapshotUpdate(10, []DeOrder{{Price: 98, Qty: 4}}, []DeOrder{{Price: 102, Qty: 1}}), tick)

	d := cache.Snapshot()

	// equivalent to inserting every snapshot level into an empty book
	fresh := NewLocalDepthCache()
	fresh.Update(snapshotUpdate(10, []DeOrder{{Price: 98, Qty: 4}}, []DeOrder{{Price: 102, Qty: 1}}), tick)

	require.Equal(t, fresh.Snapshot().Bids, d.Bids)
	require.Equal(t, fresh.Snapshot().Asks, d.Asks)
	require.NotContains(t, d.Bids, types.PriceFromFloat(100))
}

func TestSnapshotSkipsZeroQtyLevels(t *testing.T) {
	cache := NewLocalDepthCache()
	cache.Update(snapshotUpdate(1, []DeOrder{{Price: 100, Qty: 0}, {Price: 99, Qty: 1}}, nil), tick)

	d := cache.Snapshot()
	require.NotContains(t, d.Bids, types.PriceFromFloat(100))
	require.Len(t, d.Bids, 1)
}

func TestMidPrice(t *testing.T) {
	cache := NewLocalDepthCache()
	cache.Update(snapshotUpdate(1,
		[]DeOrder{{Price: 100, Qty: 2}, {Price: 99, Qty: 1}},
		[]DeOrder{{Price: 101, Qty: 3}},
	), tick)

	mid, ok := cache.Snapshot().MidPrice()
	require.True(t, ok)
	require.Equal(t, types.PriceFromFloat(100.5), mid)
}

func TestMidPriceEmptySide(t *testing.T) {
	cache := NewLocalDepthCache()
	cache.Update(snapshotUpdate(1, []DeOrder{{Price: 100, Qty: 2}}, nil), tick)

	_, ok := cache.Snapshot().MidPrice()
	require.False(t, ok)
}

func TestSnapshotCopyOnWrite(t *testing.T) {
	cache := NewLocalDepthCache()
	cache.Update(snapshotUpdate(1, []DeOrder{{Price: 100, Qty: 2}}, []DeOrder{{Price: 101, Qty: 3}}), tick)

	held := cache.Snapshot()

	cache.Update(diffUpdate(2, []DeOrder{{Price: 100, Qty: 0}, {Price: 99, Qty: 7}}, nil), tick)

	// the held snapshot is unaffected by later mutations
	require.Equal(t, 2.0, held.Bids[types.PriceFromFloat(100)])
	require.NotContains(t, held.Bids, types.PriceFromFloat(99))

	next := cache.Snapshot()
	require.NotSame(t, held, next)
	require.NotContains(t, next.Bids, types.PriceFromFloat(100))
	require.Equal(t, 7.0, next.Bids[types.PriceFromFloat(99)])
}

func TestLevelsSorted(t *testing.T) {
	cache := NewLocalDepthCache()
	cache.Update(snapshotUpdate(1,
		[]DeOrder{{Price: 99, Qty: 1}, {Price: 100, Qty: 2}, {Price: 98, Qty: 3}},
		[]DeOrder{{Price: 102, Qty: 1}, {Price: 101, Qty: 2}},
	), tick)

	d := cache.Snapshot()

	bids := d.BidLevels()
	require.Len(t, bids, 3)
	require.Equal(t, types.PriceFromFloat(100), bids[0].Price)
	require.Equal(t, types.PriceFromFloat(98), bids[2].Price)

	asks := d.AskLevels()
	require.Len(t, asks, 2)
	require.Equal(t, types.PriceFromFloat(101), asks[0].Price)
}

func TestDiffRoundsPricesToTick(t *testing.T) {
	cache := NewLocalDepthCache()
	cache.Update(snapshotUpdate(1, nil, nil), tick)

	cache.Update(diffUpdate(2, []DeOrder{{Price: 100.123, Qty: 1}}, nil), tick)

	d := cache.Snapshot()
	require.Contains(t, d.Bids, types.PriceFromFloat(100.12))
	require.NotContains(t, d.Bids, types.PriceFromFloat(100.123))
}
