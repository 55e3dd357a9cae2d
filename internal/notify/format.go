package notify

import (
	"fmt"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

// FormatEvent renders ev as an alert title and body.
func FormatEvent(ev domain.Event) (title, message string) {
	switch ev.Type {
	case domain.EventCardSold:
		return fmt.Sprintf("Card #%d sold", ev.AssetID),
			fmt.Sprintf("Buyer %s paid %d to seller %s", ev.Actor.Hex(), ev.Amount, ev.Counterparty.Hex())
	case domain.EventAuctionSettled:
		if ev.Counterparty == domain.ZeroAddress {
			return fmt.Sprintf("Auction #%d closed without bids", ev.AssetID),
				fmt.Sprintf("Card returned to seller. Finalized by %s", ev.Actor.Hex())
		}
		return fmt.Sprintf("Auction #%d settled", ev.AssetID),
			fmt.Sprintf("Winner %s with %d. Finalized by %s", ev.Counterparty.Hex(), ev.Amount, ev.Actor.Hex())
	case domain.EventEnginePaused:
		return "Trading paused", fmt.Sprintf("Paused by operator %s", ev.Actor.Hex())
	case domain.EventEngineUnpaused:
		return "Trading resumed", fmt.Sprintf("Unpaused by operator %s", ev.Actor.Hex())
	case domain.EventFundsCredited:
		return fmt.Sprintf("Escrow credit for %s", ev.Actor.Hex()),
			fmt.Sprintf("%d is available to withdraw", ev.Amount)
	default:
		return string(ev.Type), fmt.Sprintf("asset %d actor %s amount %d", ev.AssetID, ev.Actor.Hex(), ev.Amount)
	}
}
