package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/cardmarket/internal/crypto"
	"github.com/alanyoungcy/cardmarket/internal/domain"
)

var keygenOut string

func init() {
	keygenCmd.Flags().StringVar(&keygenOut, "out", "", "write an encrypted key file here instead of printing the raw key")
}

// keygenCmd creates a new signing key.
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a signing key",
	Long: `Generate a new secp256k1 signing key. With --out the key is encrypted
under --password and written to a key file; otherwise the raw hex key is
printed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keyHex, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		if keygenOut == "" {
			return printJSON(cmd, map[string]string{"private_key": keyHex})
		}
		if keyPassword == "" {
			return fmt.Errorf("keygen: --password is required with --out")
		}
		if _, err := os.Stat(keygenOut); err == nil {
			return fmt.Errorf("keygen: %s already exists", keygenOut)
		}
		blob, err := crypto.EncryptKey(keyHex, keyPassword)
		if err != nil {
			return err
		}
		if err := os.WriteFile(keygenOut, blob, 0o600); err != nil {
			return fmt.Errorf("keygen: write key file: %w", err)
		}
		key, err := crypto.DecryptKey(blob, keyPassword)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]string{
			"address":  crypto.NewSigner(key).Address().Hex(),
			"key_file": keygenOut,
		})
	},
}

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Print the address of the configured key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		signer, err := loadSigner(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), signer.Address().Hex())
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show server health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := readClient()
		if err != nil {
			return err
		}
		out, err := c.Health(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the server mode and market parameters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := readClient()
		if err != nil {
			return err
		}
		out, err := c.Status(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "List active listings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := readClient()
		if err != nil {
			return err
		}
		out, err := c.Listings(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var showCmd = &cobra.Command{
	Use:   "show ASSET_ID",
	Short: "Show the listing and auction state of an asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseAssetID(args[0])
		if err != nil {
			return err
		}
		c, err := readClient()
		if err != nil {
			return err
		}
		listing, err := c.Listing(cmd.Context(), id)
		if err != nil {
			return err
		}
		out := map[string]any{"listing": listing}
		if listing.IsAuction {
			auction, err := c.Auction(cmd.Context(), id)
			if err != nil {
				return err
			}
			out["auction"] = auction
		}
		return printJSON(cmd, out)
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance [ADDRESS]",
	Short: "Show the pending escrow balance (defaults to the configured key)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		var addr domain.Address
		if len(args) == 1 {
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("invalid address %q", args[0])
			}
			addr = common.HexToAddress(args[0])
		} else {
			signer, err := loadSigner(cfg)
			if err != nil {
				return err
			}
			addr = signer.Address()
		}
		c, err := readClient()
		if err != nil {
			return err
		}
		pending, err := c.PendingBalance(cmd.Context(), addr)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{"address": addr, "pending": pending})
	},
}

var settlementsLimit int

func init() {
	settlementsCmd.Flags().IntVar(&settlementsLimit, "limit", 20, "number of settlements to show")
}

var settlementsCmd = &cobra.Command{
	Use:   "settlements",
	Short: "Show recent settlements",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := readClient()
		if err != nil {
			return err
		}
		out, err := c.Settlements(cmd.Context(), settlementsLimit)
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var listCmd = &cobra.Command{
	Use:   "list ASSET_ID PRICE",
	Short: "List an asset at a fixed price",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseAssetID(args[0])
		if err != nil {
			return err
		}
		price, err := parseAmount(args[1])
		if err != nil {
			return err
		}
		c, err := signedClient()
		if err != nil {
			return err
		}
		out, err := c.ListCard(cmd.Context(), id, price)
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel ASSET_ID",
	Short: "Cancel your listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseAssetID(args[0])
		if err != nil {
			return err
		}
		c, err := signedClient()
		if err != nil {
			return err
		}
		out, err := c.CancelListing(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var buyCmd = &cobra.Command{
	Use:   "buy ASSET_ID PAID",
	Short: "Buy a fixed-price listing",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseAssetID(args[0])
		if err != nil {
			return err
		}
		paid, err := parseAmount(args[1])
		if err != nil {
			return err
		}
		c, err := signedClient()
		if err != nil {
			return err
		}
		out, err := c.BuyCard(cmd.Context(), id, paid)
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var auctionCmd = &cobra.Command{
	Use:   "auction ASSET_ID STARTING_BID DURATION",
	Short: "Start an auction, e.g. auction 7 100 72h",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseAssetID(args[0])
		if err != nil {
			return err
		}
		startingBid, err := parseAmount(args[1])
		if err != nil {
			return err
		}
		d, err := time.ParseDuration(args[2])
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", args[2], err)
		}
		c, err := signedClient()
		if err != nil {
			return err
		}
		out, err := c.StartAuction(cmd.Context(), id, startingBid, d)
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var bidCmd = &cobra.Command{
	Use:   "bid ASSET_ID AMOUNT",
	Short: "Bid on an auction",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseAssetID(args[0])
		if err != nil {
			return err
		}
		amount, err := parseAmount(args[1])
		if err != nil {
			return err
		}
		c, err := signedClient()
		if err != nil {
			return err
		}
		out, err := c.PlaceBid(cmd.Context(), id, amount)
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var finalizeCmd = &cobra.Command{
	Use:   "finalize ASSET_ID",
	Short: "Settle an ended auction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseAssetID(args[0])
		if err != nil {
			return err
		}
		c, err := signedClient()
		if err != nil {
			return err
		}
		out, err := c.FinalizeAuction(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Withdraw your pending escrow balance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := signedClient()
		if err != nil {
			return err
		}
		amount, err := c.Withdraw(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{"withdrawn": amount})
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause trading (operator only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := signedClient()
		if err != nil {
			return err
		}
		if err := c.Pause(cmd.Context()); err != nil {
			return err
		}
		return printJSON(cmd, map[string]bool{"paused": true})
	},
}

var unpauseCmd = &cobra.Command{
	Use:   "unpause",
	Short: "Resume trading (operator only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := signedClient()
		if err != nil {
			return err
		}
		if err := c.Unpause(cmd.Context()); err != nil {
			return err
		}
		return printJSON(cmd, map[string]bool{"paused": false})
	},
}

var settleCmd = &cobra.Command{
	Use:   "settle",
	Short: "Ask the auto-settler to finalize ended auctions now (operator only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := signedClient()
		if err != nil {
			return err
		}
		if err := c.TriggerSettle(cmd.Context()); err != nil {
			return err
		}
		return printJSON(cmd, map[string]string{"status": "accepted"})
	},
}

func parseAssetID(s string) (domain.AssetID, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid asset id %q", s)
	}
	return domain.AssetID(id), nil
}

func parseAmount(s string) (domain.Amount, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return domain.Amount(v), nil
}
