// Package blockchair is the secondary provider: complete history behind an
// API key.
package blockchair

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/Klingon-tech/ecashkit/internal/provider"
	"github.com/Klingon-tech/ecashkit/internal/provider/httpapi"
	"github.com/Klingon-tech/ecashkit/pkg/block"
	"github.com/Klingon-tech/ecashkit/pkg/tx"
)

// maxLimit is the largest page the API returns.
const maxLimit = 100

// Client talks to the Blockchair API.
//
// Endpoints, all taking ?key=:
//
//	GET /raw/headers?from=n&limit=m
//	    {"data":[{"id":n,"raw_header":"<hex>"}],"context":{"code":200}}
//	GET /dashboards/address/{addr}/transactions?from=n
//	    {"data":[{"hash","raw_transaction","block_id","block_hash","time"}],"context":{...}}
type Client struct {
	api *httpapi.Client
}

// New creates a client. The API key, if any, is configured on api with
// httpapi.WithQuery("key", key).
func New(api *httpapi.Client) *Client {
	return &Client{api: api}
}

// Name implements provider.Provider.
func (c *Client) Name() string { return "blockchair" }

type apiContext struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

// err reports a failure embedded in a 200 response body.
func (c apiContext) err() error {
	if c.Code == 0 || (c.Code >= 200 && c.Code <= 299) {
		return nil
	}
	return httpapi.NewStatusError(c.Code, strings.TrimSpace(c.Error))
}

type headersResponse struct {
	Data []struct {
		ID        uint32 `json:"id"`
		RawHeader string `json:"raw_header"`
	} `json:"data"`
	Context apiContext `json:"context"`
}

type txData struct {
	Hash           string `json:"hash"`
	RawTransaction string `json:"raw_transaction"`
	BlockID        int64  `json:"block_id"` // -1 while unconfirmed
	BlockHash      string `json:"block_hash"`
	Time           string `json:"time"` // UTC, time.DateTime layout
}

type txsResponse struct {
	Data    []txData   `json:"data"`
	Context apiContext `json:"context"`
}

// FetchHeaders implements provider.Provider.
func (c *Client) FetchHeaders(ctx context.Context, from uint32, count int) ([]*block.Header, error) {
	if count <= 0 {
		return nil, nil
	}
	q := url.Values{
		"from":  {strconv.FormatUint(uint64(from), 10)},
		"limit": {strconv.Itoa(min(count, maxLimit))},
	}
	var resp headersResponse
	if err := c.api.Get(ctx, "/raw/headers", q, &resp); err != nil {
		return nil, fmt.Errorf("blockchair headers from %d: %w", from, err)
	}
	if err := resp.Context.err(); err != nil {
		return nil, fmt.Errorf("blockchair headers from %d: %w", from, err)
	}

	headers := make([]*block.Header, 0, len(resp.Data))
	for i, d := range resp.Data {
		if want := from + uint32(i); d.ID != want {
			return nil, fmt.Errorf("%w: blockchair returned height %d, want %d", provider.ErrPermanent, d.ID, want)
		}
		h, err := block.ParseHex(d.ID, d.RawHeader)
		if err != nil {
			return nil, fmt.Errorf("%w: blockchair header %d: %w", provider.ErrPermanent, d.ID, err)
		}
		headers = append(headers, h)
	}
	return headers, nil
}

// FetchTransactions implements provider.Provider.
func (c *Client) FetchTransactions(ctx context.Context, addresses []string, fromHeight uint32) ([]*tx.Record, error) {
	var records []*tx.Record
	for _, addr := range addresses {
		q := url.Values{"from": {strconv.FormatUint(uint64(fromHeight), 10)}}
		var resp txsResponse
		err := c.api.Get(ctx, "/dashboards/address/"+addr+"/transactions", q, &resp)
		if err == nil {
			err = resp.Context.err()
		}
		if httpapi.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("blockchair transactions %s: %w", addr, err)
		}
		for _, d := range resp.Data {
			rec, err := d.record()
			if err != nil {
				return nil, fmt.Errorf("%w: blockchair tx %s: %w", provider.ErrPermanent, d.Hash, err)
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

func (d txData) record() (*tx.Record, error) {
	var (
		height    uint32
		blockHash chainhash.Hash
	)
	if d.BlockID > 0 {
		hash, err := chainhash.NewHashFromStr(d.BlockHash)
		if err != nil {
			return nil, fmt.Errorf("block hash: %w", err)
		}
		height, blockHash = uint32(d.BlockID), *hash
	}
	var ts int64
	if d.Time != "" {
		t, err := time.Parse(time.DateTime, d.Time)
		if err != nil {
			return nil, fmt.Errorf("time: %w", err)
		}
		ts = t.Unix()
	}
	return tx.FromHex(d.Hash, d.RawTransaction, height, blockHash, ts)
}
