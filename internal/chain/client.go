// Package chain talks to the ProdAuth contract that holds the authoritative
// record of sellers, buyers, products and sales.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// TxStatus is the lifecycle of a submitted transaction.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// TxReceipt is what a caller learns about a submitted call.
type TxReceipt struct {
	Method      string   `json:"method"`
	TxHash      string   `json:"tx_hash"`
	From        string   `json:"from"`
	Status      TxStatus `json:"status"`
	BlockNumber uint64   `json:"block_number,omitempty"`
	GasUsed     uint64   `json:"gas_used,omitempty"`
}

// Submitter signs and sends a state-changing contract call.
type Submitter interface {
	Transact(ctx context.Context, creds Credentials, method string, args ...interface{}) (*TxReceipt, error)
}

// Caller runs a read-only contract method and returns its outputs keyed by
// name. Unnamed outputs are keyed out0, out1 and so on.
type Caller interface {
	Call(ctx context.Context, method string, args ...interface{}) (map[string]interface{}, error)
}

// ReceiptReader looks up the mining outcome of a transaction.
type ReceiptReader interface {
	ReceiptStatus(ctx context.Context, txHash string) (*TxReceipt, error)
}

// Backend is everything the service needs from the node.
type Backend interface {
	Submitter
	Caller
	ReceiptReader
}

var contractCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "prodauth",
	Name:      "contract_calls_total",
	Help:      "Contract calls by method and result.",
}, []string{"method", "result"})

// Options configure Dial.
type Options struct {
	URL          string
	ArtifactsDir string
	ChainID      string
	Contract     string
	CallTimeout  time.Duration
	// WaitMined blocks Transact until the transaction is mined.
	WaitMined bool
}

// Client is a Backend over a JSON-RPC node.
type Client struct {
	eth       *ethclient.Client
	contract  *bind.BoundContract
	artifact  *Artifact
	chainID   *big.Int
	timeout   time.Duration
	waitMined bool
}

// Dial connects to the node and binds the deployed contract. The signing
// chain id is asked from the node; opts.ChainID only selects the deployment.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	art, err := LoadArtifact(opts.ArtifactsDir, opts.ChainID, opts.Contract)
	if err != nil {
		return nil, err
	}
	eth, err := ethclient.DialContext(ctx, opts.URL)
	if err != nil {
		return nil, errors.Wrap(err, "dial node")
	}
	cctx, cancel := context.WithTimeout(ctx, callTimeout(opts.CallTimeout))
	defer cancel()
	chainID, err := eth.ChainID(cctx)
	if err != nil {
		eth.Close()
		return nil, errors.Wrap(err, "query chain id")
	}
	zap.L().Info("contract bound",
		zap.String("namespace", "chain"),
		zap.String("contract", art.Name),
		zap.String("address", art.Address.Hex()),
		zap.String("chain_id", chainID.String()))

	return &Client{
		eth:       eth,
		contract:  bind.NewBoundContract(art.Address, art.ABI, eth, eth, eth),
		artifact:  art,
		chainID:   chainID,
		timeout:   callTimeout(opts.CallTimeout),
		waitMined: opts.WaitMined,
	}, nil
}

func callTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 60 * time.Second
	}
	return d
}

// Address of the bound contract.
func (c *Client) Address() common.Address {
	return c.artifact.Address
}

func (c *Client) Close() {
	c.eth.Close()
}

func (c *Client) Transact(ctx context.Context, creds Credentials, method string, args ...interface{}) (*TxReceipt, error) {
	key, from, err := creds.Key()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	opts, err := bind.NewKeyedTransactorWithChainID(key, c.chainID)
	if err != nil {
		return nil, c.fail(method, "", err)
	}
	opts.Context = ctx
	if m, ok := c.artifact.ABI.Methods[method]; ok {
		args = coerceArgs(m, args)
	}
	tx, err := c.contract.Transact(opts, method, args...)
	if err != nil {
		return nil, c.fail(method, "", err)
	}
	rc := &TxReceipt{
		Method: method,
		TxHash: tx.Hash().Hex(),
		From:   from.Hex(),
		Status: TxPending,
	}
	zap.L().Info("contract call submitted",
		zap.String("namespace", "chain"),
		zap.String("method", method),
		zap.String("from", rc.From),
		zap.String("tx", rc.TxHash))

	if !c.waitMined {
		contractCalls.WithLabelValues(method, string(TxPending)).Inc()
		return rc, nil
	}
	mined, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return rc, c.fail(method, rc.TxHash, err)
	}
	fillReceipt(rc, mined)
	if rc.Status == TxFailed {
		return rc, c.fail(method, rc.TxHash, ErrReverted)
	}
	contractCalls.WithLabelValues(method, string(rc.Status)).Inc()
	return rc, nil
}

func (c *Client) Call(ctx context.Context, method string, args ...interface{}) (map[string]interface{}, error) {
	m, ok := c.artifact.ABI.Methods[method]
	if !ok {
		return nil, c.fail(method, "", errors.Errorf("method %s not in abi", method))
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, coerceArgs(m, args)...); err != nil {
		return nil, c.fail(method, "", err)
	}
	contractCalls.WithLabelValues(method, "ok").Inc()
	return namedOutputs(m, out), nil
}

// ReceiptStatus reports TxPending while the node has no receipt yet.
func (c *Client) ReceiptStatus(ctx context.Context, txHash string) (*TxReceipt, error) {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return nil, ErrNoReceipt
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	rc := &TxReceipt{TxHash: txHash, Status: TxPending}
	r, err := c.eth.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return rc, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "receipt %s", txHash)
	}
	fillReceipt(rc, r)
	return rc, nil
}

// coerceArgs converts between hex strings and addresses where the abi input
// type asks for the other one. Everything else passes through untouched.
func coerceArgs(m abi.Method, args []interface{}) []interface{} {
	out := make([]interface{}, len(args))
	copy(out, args)
	for i, in := range m.Inputs {
		if i >= len(out) {
			break
		}
		switch in.Type.T {
		case abi.AddressTy:
			if s, ok := out[i].(string); ok && common.IsHexAddress(s) {
				out[i] = common.HexToAddress(s)
			}
		case abi.StringTy:
			if a, ok := out[i].(common.Address); ok {
				out[i] = a.Hex()
			}
		}
	}
	return out
}

func namedOutputs(m abi.Method, values []interface{}) map[string]interface{} {
	res := make(map[string]interface{}, len(values))
	for i, v := range values {
		name := fmt.Sprintf("out%d", i)
		if i < len(m.Outputs) && m.Outputs[i].Name != "" {
			name = m.Outputs[i].Name
		}
		res[name] = v
	}
	return res
}

func fillReceipt(rc *TxReceipt, r *types.Receipt) {
	if r.BlockNumber != nil {
		rc.BlockNumber = r.BlockNumber.Uint64()
	}
	rc.GasUsed = r.GasUsed
	if r.Status == types.ReceiptStatusSuccessful {
		rc.Status = TxConfirmed
	} else {
		rc.Status = TxFailed
	}
}

func (c *Client) fail(method, txHash string, err error) error {
	contractCalls.WithLabelValues(method, "error").Inc()
	zap.L().Error("contract call failed",
		zap.String("namespace", "chain"),
		zap.String("method", method),
		zap.String("tx", txHash),
		zap.Error(err))
	return &ContractError{Method: method, TxHash: txHash, Err: err}
}
