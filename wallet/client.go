package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nutcase-wallet/corewallet/cashu"
	"github.com/nutcase-wallet/corewallet/cashu/nuts/nut01"
	"github.com/nutcase-wallet/corewallet/cashu/nuts/nut02"
	"github.com/nutcase-wallet/corewallet/cashu/nuts/nut03"
	"github.com/nutcase-wallet/corewallet/cashu/nuts/nut04"
	"github.com/nutcase-wallet/corewallet/cashu/nuts/nut05"
	"github.com/nutcase-wallet/corewallet/cashu/nuts/nut06"
	"github.com/nutcase-wallet/corewallet/cashu/nuts/nut07"
)

// MintClient is a thin typed HTTP client bound to a single mint. Every
// Wallet holds exactly one, matching the wallet's single-mint design; there
// is no NUT-09 restore endpoint here since this wallet never derives
// deterministic secrets to restore from.
//
// mintInfo, activeKeys and allKeysets are lazily-filled optionals: each is
// fetched at most once per process lifetime and cached here. A failed fetch
// is never cached, so the next call tries the network again. Not
// goroutine-safe, matching the Wallet that owns this client.
type MintClient struct {
	mintURL string
	http    *http.Client

	mintInfo   *nut06.MintInfo
	activeKeys *nut01.GetKeysResponse
	allKeysets *nut02.GetKeysetsResponse
}

func NewMintClient(mintURL string) *MintClient {
	return &MintClient{
		mintURL: mintURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// GetMintInfo returns the mint's NUT-06 info document, memoized for the
// life of this client.
func (c *MintClient) GetMintInfo(ctx context.Context) (*nut06.MintInfo, error) {
	if c.mintInfo != nil {
		return c.mintInfo, nil
	}
	var info nut06.MintInfo
	if err := c.get(ctx, "/v1/info", &info); err != nil {
		return nil, err
	}
	c.mintInfo = &info
	return c.mintInfo, nil
}

// GetActiveKeysets returns the mint's current public keys, memoized for the
// life of this client.
func (c *MintClient) GetActiveKeysets(ctx context.Context) (*nut01.GetKeysResponse, error) {
	if c.activeKeys != nil {
		return c.activeKeys, nil
	}
	var res nut01.GetKeysResponse
	if err := c.get(ctx, "/v1/keys", &res); err != nil {
		return nil, err
	}
	c.activeKeys = &res
	return c.activeKeys, nil
}

// GetAllKeysets returns the mint's full keyset list (active and inactive),
// memoized for the life of this client. Callers that must observe a mint
// keyset rotation as it happens (see refreshActiveKeyset) bypass this cache
// via fetchAllKeysets instead.
func (c *MintClient) GetAllKeysets(ctx context.Context) (*nut02.GetKeysetsResponse, error) {
	if c.allKeysets != nil {
		return c.allKeysets, nil
	}
	res, err := c.fetchAllKeysets(ctx)
	if err != nil {
		return nil, err
	}
	c.allKeysets = res
	return res, nil
}

func (c *MintClient) fetchAllKeysets(ctx context.Context) (*nut02.GetKeysetsResponse, error) {
	var res nut02.GetKeysetsResponse
	if err := c.get(ctx, "/v1/keysets", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *MintClient) GetKeysetById(ctx context.Context, id string) (*nut01.GetKeysResponse, error) {
	var res nut01.GetKeysResponse
	if err := c.get(ctx, "/v1/keys/"+id, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *MintClient) PostMintQuoteBolt11(ctx context.Context, req nut04.PostMintQuoteBolt11Request) (*nut04.PostMintQuoteBolt11Response, error) {
	var res nut04.PostMintQuoteBolt11Response
	if err := c.post(ctx, "/v1/mint/quote/bolt11", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *MintClient) GetMintQuoteState(ctx context.Context, quoteId string) (*nut04.PostMintQuoteBolt11Response, error) {
	var res nut04.PostMintQuoteBolt11Response
	if err := c.get(ctx, "/v1/mint/quote/bolt11/"+quoteId, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *MintClient) PostMintBolt11(ctx context.Context, req nut04.PostMintBolt11Request) (*nut04.PostMintBolt11Response, error) {
	var res nut04.PostMintBolt11Response
	if err := c.post(ctx, "/v1/mint/bolt11", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *MintClient) PostSwap(ctx context.Context, req nut03.PostSwapRequest) (*nut03.PostSwapResponse, error) {
	var res nut03.PostSwapResponse
	if err := c.post(ctx, "/v1/swap", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *MintClient) PostMeltQuoteBolt11(ctx context.Context, req nut05.PostMeltQuoteBolt11Request) (*nut05.PostMeltQuoteBolt11Response, error) {
	var res nut05.PostMeltQuoteBolt11Response
	if err := c.post(ctx, "/v1/melt/quote/bolt11", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *MintClient) GetMeltQuoteState(ctx context.Context, quoteId string) (*nut05.PostMeltQuoteBolt11Response, error) {
	var res nut05.PostMeltQuoteBolt11Response
	if err := c.get(ctx, "/v1/melt/quote/bolt11/"+quoteId, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *MintClient) PostMeltBolt11(ctx context.Context, req nut05.PostMeltBolt11Request) (*nut05.PostMeltBolt11Response, error) {
	var res nut05.PostMeltBolt11Response
	if err := c.post(ctx, "/v1/melt/bolt11", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *MintClient) PostCheckProofState(ctx context.Context, req nut07.PostCheckStateRequest) (*nut07.PostCheckStateResponse, error) {
	var res nut07.PostCheckStateResponse
	if err := c.post(ctx, "/v1/checkstate", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *MintClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.mintURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeMintResponse(resp, out)
}

func (c *MintClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.mintURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeMintResponse(resp, out)
}

// httpStatusError carries the HTTP status and raw body of a failed mint
// request so callers can surface both without re-parsing the response.
type httpStatusError struct {
	status int
	body   string
	err    error
}

func (e *httpStatusError) Error() string { return fmt.Sprintf("status %d: %v", e.status, e.err) }
func (e *httpStatusError) Unwrap() error { return e.err }

// decodeMintResponse decodes a mint's JSON error body into a cashu.Error on
// 400 responses, and a plain error for anything else non-2xx. Either case
// is wrapped in an httpStatusError carrying the raw status and body.
func decodeMintResponse(resp *http.Response, out any) error {
	if resp.StatusCode == http.StatusBadRequest {
		body, _ := io.ReadAll(resp.Body)
		var cashuErr cashu.Error
		if err := json.Unmarshal(body, &cashuErr); err != nil {
			return &httpStatusError{status: resp.StatusCode, body: string(body), err: fmt.Errorf("mint returned 400 with undecodable body: %v", err)}
		}
		return &httpStatusError{status: resp.StatusCode, body: string(body), err: cashuErr}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &httpStatusError{status: resp.StatusCode, body: string(body), err: fmt.Errorf("mint request failed with status %d", resp.StatusCode)}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
