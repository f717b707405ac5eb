// Package chronik is the primary provider: a fast indexer that only retains
// recent history.
package chronik

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/clock"

	klog "github.com/Klingon-tech/ecashkit/internal/log"
	"github.com/Klingon-tech/ecashkit/internal/provider"
	"github.com/Klingon-tech/ecashkit/internal/provider/httpapi"
	"github.com/Klingon-tech/ecashkit/pkg/block"
	"github.com/Klingon-tech/ecashkit/pkg/tx"
)

// DefaultRetention is how far back the indexer serves history.
const DefaultRetention = 90 * 24 * time.Hour

// maxPageSize is the largest header range one request may ask for.
const maxPageSize = 500

// Client talks to a Chronik indexer.
//
// Endpoints:
//
//	GET /blocks/{from}/{to}               {"headers":[{"height":n,"raw":"<80 byte hex>"}]}
//	GET /address/{addr}/history?from=n    {"txs":[{"txid","hex","height","blockHash","time"}]}
type Client struct {
	api       *httpapi.Client
	clock     clock.Clock
	Retention time.Duration
}

// New creates a client over api. A zero retention selects DefaultRetention.
func New(api *httpapi.Client, retention time.Duration, clk clock.Clock) *Client {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &Client{api: api, clock: clk, Retention: retention}
}

// Name implements provider.Provider.
func (c *Client) Name() string { return "chronik" }

type headersResponse struct {
	Headers []struct {
		Height uint32 `json:"height"`
		Raw    string `json:"raw"`
	} `json:"headers"`
}

type historyResponse struct {
	Txs []struct {
		TxID      string `json:"txid"`
		Hex       string `json:"hex"`
		Height    uint32 `json:"height"`
		BlockHash string `json:"blockHash"`
		Time      int64  `json:"time"`
	} `json:"txs"`
}

// FetchHeaders implements provider.Provider. Headers older than the
// retention window yield provider.ErrRangeUnavailable.
func (c *Client) FetchHeaders(ctx context.Context, from uint32, count int) ([]*block.Header, error) {
	if count <= 0 {
		return nil, nil
	}
	count = min(count, maxPageSize)
	to := from + uint32(count) - 1

	var resp headersResponse
	path := fmt.Sprintf("/blocks/%d/%d", from, to)
	if err := c.api.Get(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("chronik headers %d-%d: %w", from, to, err)
	}

	headers := make([]*block.Header, 0, len(resp.Headers))
	for i, raw := range resp.Headers {
		want := from + uint32(i)
		if raw.Height != want {
			return nil, fmt.Errorf("%w: chronik returned height %d, want %d", provider.ErrPermanent, raw.Height, want)
		}
		h, err := block.ParseHex(raw.Height, raw.Raw)
		if err != nil {
			return nil, fmt.Errorf("%w: chronik header %d: %w", provider.ErrPermanent, raw.Height, err)
		}
		headers = append(headers, h)
	}

	if len(headers) > 0 && !c.retained(headers[0].Time()) {
		klog.Provider.Debug().
			Uint32("height", from).
			Time("block_time", headers[0].Timestamp).
			Msg("Chronik range older than retention window")
		return nil, fmt.Errorf("chronik height %d: %w", from, provider.ErrRangeUnavailable)
	}
	return headers, nil
}

// FetchTransactions implements provider.Provider. The request is refused
// with provider.ErrRangeUnavailable when fromHeight lies outside the
// retention window, since the indexer's history would be incomplete.
func (c *Client) FetchTransactions(ctx context.Context, addresses []string, fromHeight uint32) ([]*tx.Record, error) {
	if _, err := c.FetchHeaders(ctx, fromHeight, 1); err != nil {
		return nil, err
	}

	var records []*tx.Record
	for _, addr := range addresses {
		var resp historyResponse
		path := "/address/" + addr + "/history"
		q := url.Values{"from": {strconv.FormatUint(uint64(fromHeight), 10)}}
		err := c.api.Get(ctx, path, q, &resp)
		if httpapi.IsNotFound(err) {
			// Never seen on chain.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("chronik history %s: %w", addr, err)
		}
		for _, t := range resp.Txs {
			var blockHash chainhash.Hash
			if t.Height > 0 {
				hash, err := chainhash.NewHashFromStr(t.BlockHash)
				if err != nil {
					return nil, fmt.Errorf("%w: chronik tx %s block hash: %w", provider.ErrPermanent, t.TxID, err)
				}
				blockHash = *hash
			}
			rec, err := tx.FromHex(t.TxID, t.Hex, t.Height, blockHash, t.Time)
			if err != nil {
				return nil, fmt.Errorf("%w: chronik tx %s: %w", provider.ErrPermanent, t.TxID, err)
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

func (c *Client) retained(blockTime int64) bool {
	return !time.Unix(blockTime, 0).Before(c.clock.Now().Add(-c.Retention))
}
