package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/domain"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/retry"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	// ErrUnavailable wraps every failure to get an answer from the node
	ErrUnavailable = errors.New("blockchain node unavailable")
	// ErrRejected wraps node errors that repeating the same call cannot
	// change, such as a reverted eth_call or invalid parameters
	ErrRejected = errors.New("blockchain node rejected call")
)

// JSON-RPC error codes returned by Ethereum nodes
const (
	rpcCodeExecutionReverted = 3
	rpcCodeServerError       = -32000
	rpcCodeMethodNotFound    = -32601
	rpcCodeInvalidParams     = -32602
)

// Log is one event log of a receipt
type Log struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

// Receipt is the subset of a transaction receipt the validator reads
type Receipt struct {
	TransactionHash string
	Status          uint64
	From            string
	To              string
	BlockNumber     uint64
	Logs            []Log
}

// Succeeded reports whether the transaction executed without reverting
func (r *Receipt) Succeeded() bool {
	return r.Status == 1
}

// Reader is what the payment validator needs from the chain
type Reader interface {
	// TransactionReceipt returns nil, nil when the transaction is unknown or
	// not yet mined
	TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)
	// ContractState calls state() on the escrow contract
	ContractState(ctx context.Context, contract string) (domain.ContractState, error)
}

// RPCError is an error object returned by the node
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Deterministic reports whether the same request would fail the same way.
// -32000 is a catch-all server error in most nodes and only counts when it
// reports a revert.
func (e *RPCError) Deterministic() bool {
	switch e.Code {
	case rpcCodeExecutionReverted, rpcCodeMethodNotFound, rpcCodeInvalidParams:
		return true
	case rpcCodeServerError:
		return strings.Contains(strings.ToLower(e.Message), "revert")
	}
	return false
}

// Config configures an RPCClient
type Config struct {
	URL        string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

// RPCClient implements Reader over JSON-RPC 2.0
type RPCClient struct {
	url     string
	http    *http.Client
	retrier *retry.Retrier
	nextID  atomic.Uint64
}

// NewRPCClient creates a client. Timeout bounds every single attempt.
func NewRPCClient(cfg *Config) *RPCClient {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &RPCClient{
		url:  cfg.URL,
		http: hc,
		retrier: retry.New(&retry.Config{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: 250 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			Multiplier:      2,
			JitterFactor:    0.1,
		}),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type rpcReceipt struct {
	TransactionHash string `json:"transactionHash"`
	Status          string `json:"status"`
	From            string `json:"from"`
	To              string `json:"to"`
	BlockNumber     string `json:"blockNumber"`
	Logs            []Log  `json:"logs"`
}

type callMsg struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

// TransactionReceipt fetches eth_getTransactionReceipt
func (c *RPCClient) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	ctx, span := telemetry.StartSpan(ctx, "chain.get_transaction_receipt")
	defer span.End()
	span.SetAttributes(attribute.String("tx_hash", txHash))

	var raw *rpcReceipt
	if err := c.call(ctx, "eth_getTransactionReceipt", &raw, txHash); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if raw == nil {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, nil
	}

	receipt, err := raw.decode()
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrUnavailable, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("found", true),
		attribute.Int64("block_number", int64(receipt.BlockNumber)),
		attribute.Int("logs", len(receipt.Logs)),
	)
	span.SetStatus(codes.Ok, "")
	return receipt, nil
}

// ContractState calls state() with eth_call at the latest block
func (c *RPCClient) ContractState(ctx context.Context, contract string) (domain.ContractState, error) {
	ctx, span := telemetry.StartSpan(ctx, "chain.contract_state")
	defer span.End()
	span.SetAttributes(attribute.String("contract", contract))

	var result string
	if err := c.call(ctx, "eth_call", &result, callMsg{To: contract, Data: StateSelector}, "latest"); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	v, err := DecodeUint256(result)
	if err != nil {
		err = fmt.Errorf("%w: state(): %w", ErrUnavailable, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	state := domain.ContractState(^uint64(0))
	if v.IsUint64() {
		state = domain.ContractState(v.Uint64())
	}
	span.SetAttributes(attribute.String("state", state.String()))
	span.SetStatus(codes.Ok, "")
	return state, nil
}

// BlockNumber returns the latest block the node has seen
func (c *RPCClient) BlockNumber(ctx context.Context) (uint64, error) {
	var result string
	if err := c.call(ctx, "eth_blockNumber", &result); err != nil {
		return 0, err
	}
	n, err := ParseQuantity(result)
	if err != nil {
		return 0, fmt.Errorf("%w: eth_blockNumber: %w", ErrUnavailable, err)
	}
	return n, nil
}

// HealthCheck reports whether the node answers
func (c *RPCClient) HealthCheck(ctx context.Context) error {
	_, err := c.BlockNumber(ctx)
	return err
}

// call performs one JSON-RPC method with retries. Deterministic node errors
// are not retried and surface as ErrRejected; every other failure surfaces
// as ErrUnavailable.
func (c *RPCClient) call(ctx context.Context, method string, out any, params ...any) error {
	result := c.retrier.Do(ctx, func(ctx context.Context) error {
		return c.do(ctx, method, out, params)
	})
	if result.Err == nil {
		return nil
	}
	var rpcErr *RPCError
	if errors.As(result.Err, &rpcErr) && rpcErr.Deterministic() {
		return fmt.Errorf("%w: %s: %w", ErrRejected, method, result.Err)
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, method, result.Err)
}

func (c *RPCClient) do(ctx context.Context, method string, out any, params []any) error {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return retry.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("node returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return retry.Permanent(fmt.Errorf("node returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return retry.Permanent(fmt.Errorf("decode %s response: %w", method, err))
	}
	if rpcResp.Error != nil {
		if rpcResp.Error.Deterministic() {
			return retry.Permanent(rpcResp.Error)
		}
		return rpcResp.Error
	}
	if len(rpcResp.Result) == 0 {
		return retry.Permanent(fmt.Errorf("%s response has no result", method))
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return retry.Permanent(fmt.Errorf("decode %s result: %w", method, err))
	}
	return nil
}

func (r *rpcReceipt) decode() (*Receipt, error) {
	status, err := ParseQuantity(r.Status)
	if err != nil {
		return nil, fmt.Errorf("receipt status: %w", err)
	}
	block, err := ParseQuantity(r.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("receipt block number: %w", err)
	}
	return &Receipt{
		TransactionHash: strings.ToLower(r.TransactionHash),
		Status:          status,
		From:            strings.ToLower(r.From),
		To:              strings.ToLower(r.To),
		BlockNumber:     block,
		Logs:            r.Logs,
	}, nil
}
