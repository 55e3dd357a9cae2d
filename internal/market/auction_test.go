package market

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

func TestMinNextBid(t *testing.T) {
	tests := []struct {
		name    string
		auction domain.Auction
		want    domain.Amount
	}{
		{"no bid uses asking price", domain.Auction{AskingPrice: 100}, 100},
		{"five percent of 200", domain.Auction{HighestBid: 200, HighestBidder: bidderB}, 210},
		{"rounds down", domain.Auction{HighestBid: 199, HighestBidder: bidderB}, 208},
		{"small bid", domain.Auction{HighestBid: 1, HighestBidder: bidderB}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MinNextBid(tt.auction, DefaultMinIncrementPct))
		})
	}
}

func TestMinNextBidNoOverflow(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		hb := rapid.Int64Range(1, math.MaxInt64).Draw(t, "highestBid")
		got := MinNextBid(domain.Auction{HighestBid: domain.Amount(hb), HighestBidder: bidderB}, DefaultMinIncrementPct)
		if int64(got) < hb {
			t.Fatalf("min next bid %d below highest bid %d", got, hb)
		}
		if hb <= math.MaxInt64/105 && int64(got) != hb*105/100 {
			t.Fatalf("min next bid %d != %d", got, hb*105/100)
		}
	})
}

func TestAuctionEndedAtEndTime(t *testing.T) {
	end := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := domain.Auction{EndTime: end}
	assert.False(t, a.Ended(end.Add(-time.Nanosecond)))
	assert.True(t, a.Ended(end))
	assert.True(t, a.Ended(end.Add(time.Second)))
}
