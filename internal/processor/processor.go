// Package processor handles all interactions with the payment processor
// contract: state reads, service catalog writes, and purchase lookups.
package processor

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel/codes"

	"github.com/gamepay/procadmin/internal/metrics"
	"github.com/gamepay/procadmin/internal/traces"
)

// -----------------------------------------------------------------------------
// Errors - typed errors for programmatic handling
// -----------------------------------------------------------------------------

var (
	ErrInvalidPrivateKey = errors.New("processor: invalid private key")
	ErrRPCConnection     = errors.New("processor: RPC connection failed")
	ErrReverted          = errors.New("processor: transaction reverted")
	ErrConfirmTimeout    = errors.New("processor: confirmation timed out")
	ErrServiceIndex      = errors.New("processor: service index out of range")
	ErrInvalidArgument   = errors.New("processor: invalid argument")
)

// ReadError wraps failures of contract view calls.
type ReadError struct {
	Method string
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("processor: read %s failed: %v", e.Method, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError wraps failures that occur before the network accepts a
// transaction. The state change was never submitted.
type WriteError struct {
	Method string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("processor: write %s failed: %v", e.Method, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ConfirmError wraps failures after submission: the transaction was accepted
// by the network but reverted or was never mined within the timeout.
type ConfirmError struct {
	Method string
	TxHash string
	Err    error
}

func (e *ConfirmError) Error() string {
	return fmt.Sprintf("processor: %s not confirmed (tx: %s): %v", e.Method, e.TxHash, e.Err)
}

func (e *ConfirmError) Unwrap() error { return e.Err }

// -----------------------------------------------------------------------------
// Interfaces
// -----------------------------------------------------------------------------

// EthClient abstracts the go-ethereum client for testing.
type EthClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	NetworkID(ctx context.Context) (*big.Int, error)
	Close()
}

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

// Payment processor contract ABI, limited to the surface this console uses.
const processorABI = `[
	{"constant":true,"inputs":[],"name":"getName","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"getFirstParty","outputs":[{"name":"","type":"address"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"getSecondParty","outputs":[{"name":"","type":"address"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"getNextServiceId","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"getFirstPartyPot","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"getSecondPartyPot","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"serviceId","type":"uint256"}],"name":"getServiceName","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"serviceId","type":"uint256"}],"name":"getServiceCost","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"serviceId","type":"uint256"}],"name":"getServiceEnabled","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"purchaser","type":"address"}],"name":"getPurchases","outputs":[{"components":[{"name":"serviceId","type":"uint256"},{"name":"cost","type":"uint256"},{"name":"timestamp","type":"uint256"}],"name":"","type":"tuple[]"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"serviceName","type":"string"},{"name":"serviceCost","type":"uint256"}],"name":"addService","outputs":[],"type":"function"},
	{"constant":false,"inputs":[{"name":"serviceId","type":"uint256"},{"name":"serviceName","type":"string"},{"name":"serviceCost","type":"uint256"},{"name":"serviceEnabled","type":"bool"}],"name":"updateService","outputs":[],"type":"function"}
]`

const (
	// DefaultGasLimit for catalog writes when estimation fails
	DefaultGasLimit = uint64(300000)

	// DefaultConfirmationTimeout for waiting on transactions
	DefaultConfirmationTimeout = 90 * time.Second

	// ConfirmationPollInterval between receipt checks
	ConfirmationPollInterval = 2 * time.Second

	// serviceReadConcurrency bounds the catalog fan-out so a large catalog
	// does not open one RPC call per field at once.
	serviceReadConcurrency = 8
)

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// Config for connecting to the payment processor contract.
type Config struct {
	RPCURL     string
	PrivateKey string // Hex string, 0x prefix optional
	ChainID    int64
	Contract   string
}

// Option configures the Processor.
type Option func(*Processor)

// WithClient sets a custom Ethereum client (useful for testing)
func WithClient(client EthClient) Option {
	return func(p *Processor) { p.client = client }
}

// WithConfirmationTimeout overrides how long catalog writes block for a receipt.
func WithConfirmationTimeout(d time.Duration) Option {
	return func(p *Processor) { p.confirmTimeout = d }
}

// WithPollInterval overrides the receipt polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(p *Processor) { p.pollInterval = d }
}

// TxResult describes a mined transaction.
type TxResult struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	GasUsed     uint64 `json:"gasUsed"`
}

// Processor is a signing client for the payment processor contract.
type Processor struct {
	client         EthClient
	privateKey     *ecdsa.PrivateKey
	address        common.Address
	chainID        *big.Int
	contract       common.Address
	abi            abi.ABI
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

// New creates a Processor from config.
func New(cfg Config, opts ...Option) (*Processor, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: failed to derive public key", ErrInvalidPrivateKey)
	}

	parsedABI, err := abi.JSON(strings.NewReader(processorABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse processor ABI: %w", err)
	}

	p := &Processor{
		privateKey:     privateKey,
		address:        crypto.PubkeyToAddress(*publicKey),
		chainID:        big.NewInt(cfg.ChainID),
		contract:       common.HexToAddress(cfg.Contract),
		abi:            parsedABI,
		confirmTimeout: DefaultConfirmationTimeout,
		pollInterval:   ConfirmationPollInterval,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil {
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
		}
		p.client = client
	}

	return p, nil
}

func validateConfig(cfg Config) error {
	if cfg.RPCURL == "" {
		return fmt.Errorf("%w: RPC URL required", ErrRPCConnection)
	}
	if cfg.PrivateKey == "" {
		return fmt.Errorf("%w: private key required", ErrInvalidPrivateKey)
	}
	key := strings.TrimPrefix(cfg.PrivateKey, "0x")
	if len(key) != 64 {
		return fmt.Errorf("%w: must be 64 hex characters", ErrInvalidPrivateKey)
	}
	if cfg.ChainID == 0 {
		return fmt.Errorf("chain ID required")
	}
	if cfg.Contract == "" {
		return fmt.Errorf("processor contract address required")
	}
	return nil
}

// Address returns the signing account's address.
func (p *Processor) Address() string {
	return p.address.Hex()
}

// Ping checks the RPC connection. Used by the health registry.
func (p *Processor) Ping(ctx context.Context) error {
	if _, err := p.client.NetworkID(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRPCConnection, err)
	}
	return nil
}

// Close closes the client connection.
func (p *Processor) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}

// call packs and executes a view call, returning the raw return data.
func (p *Processor) call(ctx context.Context, method string, args ...any) ([]byte, error) {
	data, err := p.abi.Pack(method, args...)
	if err != nil {
		return nil, &ReadError{Method: method, Err: err}
	}

	out, err := p.client.CallContract(ctx, ethereum.CallMsg{
		To:   &p.contract,
		Data: data,
	}, nil)
	if err != nil {
		metrics.ContractReadsTotal.WithLabelValues(method, "error").Inc()
		return nil, &ReadError{Method: method, Err: err}
	}

	metrics.ContractReadsTotal.WithLabelValues(method, "ok").Inc()
	return out, nil
}

// callString executes a view call returning a single string.
func (p *Processor) callString(ctx context.Context, method string, args ...any) (string, error) {
	out, err := p.call(ctx, method, args...)
	if err != nil {
		return "", err
	}
	vals, err := p.abi.Unpack(method, out)
	if err != nil || len(vals) != 1 {
		return "", &ReadError{Method: method, Err: fmt.Errorf("unpacking return: %v", err)}
	}
	s, ok := vals[0].(string)
	if !ok {
		return "", &ReadError{Method: method, Err: fmt.Errorf("unexpected return type %T", vals[0])}
	}
	return s, nil
}

// callAddress executes a view call returning a single address.
func (p *Processor) callAddress(ctx context.Context, method string, args ...any) (string, error) {
	out, err := p.call(ctx, method, args...)
	if err != nil {
		return "", err
	}
	vals, err := p.abi.Unpack(method, out)
	if err != nil || len(vals) != 1 {
		return "", &ReadError{Method: method, Err: fmt.Errorf("unpacking return: %v", err)}
	}
	addr, ok := vals[0].(common.Address)
	if !ok {
		return "", &ReadError{Method: method, Err: fmt.Errorf("unexpected return type %T", vals[0])}
	}
	return addr.Hex(), nil
}

// callWord executes a view call returning a single uint256, decoded through
// big.Int so the full 256-bit width survives.
func (p *Processor) callWord(ctx context.Context, method string, args ...any) (*big.Int, error) {
	out, err := p.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	return DecodeWord(out), nil
}

// callBool executes a view call returning a single bool.
func (p *Processor) callBool(ctx context.Context, method string, args ...any) (bool, error) {
	out, err := p.call(ctx, method, args...)
	if err != nil {
		return false, err
	}
	vals, err := p.abi.Unpack(method, out)
	if err != nil || len(vals) != 1 {
		return false, &ReadError{Method: method, Err: fmt.Errorf("unpacking return: %v", err)}
	}
	b, ok := vals[0].(bool)
	if !ok {
		return false, &ReadError{Method: method, Err: fmt.Errorf("unexpected return type %T", vals[0])}
	}
	return b, nil
}

// submit signs and sends a state-changing transaction. Any failure here means
// the network never accepted the transaction.
func (p *Processor) submit(ctx context.Context, method string, args ...any) (*types.Transaction, error) {
	data, err := p.abi.Pack(method, args...)
	if err != nil {
		return nil, &WriteError{Method: method, Err: err}
	}

	nonce, err := p.client.PendingNonceAt(ctx, p.address)
	if err != nil {
		return nil, &WriteError{Method: method, Err: err}
	}

	gasPrice, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, &WriteError{Method: method, Err: err}
	}

	gasLimit, err := p.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  p.address,
		To:    &p.contract,
		Value: big.NewInt(0),
		Data:  data,
	})
	if err != nil {
		// Use default if estimation fails
		gasLimit = DefaultGasLimit
	}

	tx := types.NewTransaction(nonce, p.contract, big.NewInt(0), gasLimit, gasPrice, data)

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(p.chainID), p.privateKey)
	if err != nil {
		return nil, &WriteError{Method: method, Err: err}
	}

	if err := p.client.SendTransaction(ctx, signedTx); err != nil {
		metrics.ContractWritesTotal.WithLabelValues(method, "error").Inc()
		return nil, &WriteError{Method: method, Err: err}
	}

	metrics.ContractWritesTotal.WithLabelValues(method, "ok").Inc()
	return signedTx, nil
}

// waitMined blocks until the transaction is mined or the confirmation window
// closes. A reverted receipt and a timeout both surface as ConfirmError: the
// transaction reached the network, the handler must not report success.
func (p *Processor) waitMined(ctx context.Context, method string, txHash common.Hash) (*TxResult, error) {
	start := time.Now()

	ctx, span := traces.StartSpan(ctx, "processor.waitMined",
		traces.Method(method), traces.TxHash(txHash.Hex()))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				span.SetStatus(codes.Error, "confirmation timed out")
				return nil, &ConfirmError{Method: method, TxHash: txHash.Hex(), Err: ErrConfirmTimeout}
			}
			span.SetStatus(codes.Error, "confirmation canceled")
			return nil, &ConfirmError{Method: method, TxHash: txHash.Hex(), Err: ctx.Err()}

		case <-ticker.C:
			receipt, err := p.client.TransactionReceipt(ctx, txHash)
			if err != nil {
				// Transaction not yet mined, continue waiting
				continue
			}

			if receipt.Status == 0 {
				span.SetStatus(codes.Error, "transaction reverted")
				return nil, &ConfirmError{Method: method, TxHash: txHash.Hex(), Err: ErrReverted}
			}

			metrics.ConfirmationDuration.Observe(time.Since(start).Seconds())
			return &TxResult{
				TxHash:      txHash.Hex(),
				BlockNumber: receipt.BlockNumber.Uint64(),
				GasUsed:     receipt.GasUsed,
			}, nil
		}
	}
}
