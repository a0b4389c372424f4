// Package solana is a minimal JSON-RPC client for the ledger node. It covers
// exactly the two reads the indexer needs: the per-program signature list and
// individual transactions in jsonParsed form.
package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/curvemarket/internal/domain"
)

// Client talks to a Solana-compatible JSON-RPC endpoint. All errors that
// reach the caller wrap domain.ErrChainUnavailable, so callers can treat any
// failure as transient and retry on the next poll.
type Client struct {
	rpcURL     string
	commitment string
	httpClient *http.Client
}

// NewClient creates a chain client for the given RPC endpoint. commitment
// is the confirmation level to query at; empty means "confirmed".
func NewClient(rpcURL, commitment string) *Client {
	if commitment == "" {
		commitment = "confirmed"
	}
	return &Client{
		rpcURL:     rpcURL,
		commitment: commitment,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// rpcRequest is the JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// rpcResponse is the JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("solana: marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("solana: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("solana: %s: %v: %w", method, err, domain.ErrChainUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("solana: %s: status %d: %s: %w",
			method, resp.StatusCode, string(data), domain.ErrChainUnavailable)
	}

	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("solana: decode %s response: %v: %w", method, err, domain.ErrChainUnavailable)
	}
	if envelope.Error != nil {
		return fmt.Errorf("solana: %s: rpc error %d: %s: %w",
			method, envelope.Error.Code, envelope.Error.Message, domain.ErrChainUnavailable)
	}

	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("solana: decode %s result: %v: %w", method, err, domain.ErrChainUnavailable)
	}
	return nil
}

// ListSignatures returns up to limit signatures that touched programID,
// newest first, via getSignaturesForAddress.
func (c *Client) ListSignatures(ctx context.Context, programID string, limit int) ([]domain.SignatureInfo, error) {
	var result []struct {
		Signature string          `json:"signature"`
		BlockTime *int64          `json:"blockTime"`
		Err       json.RawMessage `json:"err"`
	}

	params := []any{
		programID,
		map[string]any{"limit": limit, "commitment": c.commitment},
	}
	if err := c.call(ctx, "getSignaturesForAddress", params, &result); err != nil {
		return nil, err
	}

	out := make([]domain.SignatureInfo, 0, len(result))
	for _, r := range result {
		info := domain.SignatureInfo{
			Signature: r.Signature,
			Failed:    len(r.Err) > 0 && string(r.Err) != "null",
		}
		if r.BlockTime != nil {
			info.BlockTime = time.Unix(*r.BlockTime, 0).UTC()
		}
		out = append(out, info)
	}
	return out, nil
}

// tokenBalance is the jsonParsed meta token balance entry.
type tokenBalance struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UITokenAmount struct {
		Amount string `json:"amount"`
	} `json:"uiTokenAmount"`
}

// GetEvent fetches one transaction via getTransaction in jsonParsed encoding
// and decodes it to the instruction list and token balance deltas the indexer
// consumes.
func (c *Client) GetEvent(ctx context.Context, signature string) (domain.ChainEvent, error) {
	var result *struct {
		BlockTime   *int64 `json:"blockTime"`
		Transaction struct {
			Message struct {
				Instructions []struct {
					ProgramID string   `json:"programId"`
					Accounts  []string `json:"accounts"`
				} `json:"instructions"`
			} `json:"message"`
		} `json:"transaction"`
		Meta *struct {
			Err               json.RawMessage `json:"err"`
			PreTokenBalances  []tokenBalance  `json:"preTokenBalances"`
			PostTokenBalances []tokenBalance  `json:"postTokenBalances"`
		} `json:"meta"`
	}

	params := []any{
		signature,
		map[string]any{
			"encoding":                       "jsonParsed",
			"commitment":                     c.commitment,
			"maxSupportedTransactionVersion": 0,
		},
	}
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return domain.ChainEvent{}, err
	}
	if result == nil {
		return domain.ChainEvent{}, fmt.Errorf("solana: transaction %s not found: %w",
			signature, domain.ErrChainUnavailable)
	}

	ev := domain.ChainEvent{Signature: signature}
	if result.BlockTime != nil {
		ev.BlockTime = time.Unix(*result.BlockTime, 0).UTC()
	}
	for _, ins := range result.Transaction.Message.Instructions {
		ev.Instructions = append(ev.Instructions, domain.Instruction{
			ProgramID: ins.ProgramID,
			Accounts:  ins.Accounts,
		})
	}
	if result.Meta != nil {
		ev.Failed = len(result.Meta.Err) > 0 && string(result.Meta.Err) != "null"
		ev.PreTokenBalances = decodeBalances(result.Meta.PreTokenBalances)
		ev.PostTokenBalances = decodeBalances(result.Meta.PostTokenBalances)
	}
	return ev, nil
}

func decodeBalances(in []tokenBalance) []domain.TokenBalance {
	out := make([]domain.TokenBalance, 0, len(in))
	for _, b := range in {
		amount, err := strconv.ParseInt(b.UITokenAmount.Amount, 10, 64)
		if err != nil {
			// Raw amounts come as decimal strings; an unparsable one is
			// left at zero rather than failing the whole event.
			amount = 0
		}
		out = append(out, domain.TokenBalance{
			AccountIndex: b.AccountIndex,
			Mint:         b.Mint,
			Owner:        b.Owner,
			Amount:       amount,
		})
	}
	return out
}
