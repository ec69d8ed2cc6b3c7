package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Mohsinsiddi/swapdeploy/internal/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lmittmann/w3"
	"github.com/lmittmann/w3/module/eth"
	"github.com/lmittmann/w3/w3types"
)

// ErrReverted is returned when a mined transaction has status 0.
var ErrReverted = errors.New("transaction reverted")

// Client is a JSON-RPC client for the calls a deployment needs.
type Client struct {
	rpc *w3.Client

	// PollInterval is the delay between receipt polls in WaitForReceipt.
	PollInterval time.Duration
	// Timeout bounds each individual RPC round trip.
	Timeout time.Duration
}

// TxParams are the values needed to build the next transaction from an account.
type TxParams struct {
	ChainID  *big.Int
	GasPrice *big.Int
	Nonce    uint64
}

// Dial connects to the RPC endpoint at url.
func Dial(url string) (*Client, error) {
	rpc, err := w3.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{
		rpc:          rpc,
		PollInterval: config.ReceiptPollInterval,
		Timeout:      config.RPCTimeout,
	}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.rpc.Close()
}

// ChainID returns the chain's ID.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id uint64
	if err := c.call(ctx, eth.ChainID().Returns(&id)); err != nil {
		return nil, fmt.Errorf("eth_chainId: %w", err)
	}
	return new(big.Int).SetUint64(id), nil
}

// Head returns the chain id and latest block number in one batch request.
func (c *Client) Head(ctx context.Context) (chainID uint64, block uint64, err error) {
	var num *big.Int
	if err := c.call(ctx, eth.ChainID().Returns(&chainID), eth.BlockNumber().Returns(&num)); err != nil {
		return 0, 0, fmt.Errorf("head: %w", err)
	}
	return chainID, num.Uint64(), nil
}

// TxParams fetches chain id, gas price and nonce for from in one batch request.
func (c *Client) TxParams(ctx context.Context, from common.Address) (*TxParams, error) {
	var (
		id       uint64
		gasPrice *big.Int
		nonce    uint64
	)
	if err := c.call(ctx,
		eth.ChainID().Returns(&id),
		eth.GasPrice().Returns(&gasPrice),
		eth.Nonce(from, nil).Returns(&nonce),
	); err != nil {
		return nil, fmt.Errorf("fetching tx params for %s: %w", from.Hex(), err)
	}
	return &TxParams{
		ChainID:  new(big.Int).SetUint64(id),
		GasPrice: gasPrice,
		Nonce:    nonce,
	}, nil
}

// EstimateGas estimates gas for a call or, with a nil To, a contract creation.
func (c *Client) EstimateGas(ctx context.Context, from common.Address, to *common.Address, data []byte) (uint64, error) {
	var gas uint64
	msg := &w3types.Message{From: from, To: to, Input: data}
	if err := c.call(ctx, eth.EstimateGas(msg, nil).Returns(&gas)); err != nil {
		return 0, fmt.Errorf("eth_estimateGas: %w", err)
	}
	return gas, nil
}

// SendTx broadcasts a signed transaction and returns its hash.
func (c *Client) SendTx(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	var hash common.Hash
	if err := c.call(ctx, eth.SendTx(tx).Returns(&hash)); err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendRawTransaction: %w", err)
	}
	return hash, nil
}

// Receipt fetches the receipt for hash. Returns nil, nil if the transaction
// is still pending.
func (c *Client) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	if err := c.call(ctx, eth.TxReceipt(hash).Returns(&receipt)); err != nil {
		return nil, fmt.Errorf("eth_getTransactionReceipt: %w", err)
	}
	return receipt, nil
}

// WaitForReceipt polls until the transaction is mined or ctx expires.
// A reverted transaction returns its receipt together with ErrReverted.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		// Nodes answer "not found" for pending transactions, so lookup errors
		// are retried until the deadline.
		receipt, err := c.Receipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, fmt.Errorf("%w (hash: %s)", ErrReverted, hash.Hex())
			}
			return receipt, nil
		}
		if err != nil {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return nil, fmt.Errorf("transaction %s not mined: %w (last error: %v)", hash.Hex(), ctx.Err(), lastErr)
			}
			return nil, fmt.Errorf("transaction %s not mined: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Code returns the runtime bytecode at addr. Empty means no contract.
func (c *Client) Code(ctx context.Context, addr common.Address) ([]byte, error) {
	var code []byte
	if err := c.call(ctx, eth.Code(addr, nil).Returns(&code)); err != nil {
		return nil, fmt.Errorf("eth_getCode %s: %w", addr.Hex(), err)
	}
	return code, nil
}

// StorageAt reads a raw storage slot.
func (c *Client) StorageAt(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	var val common.Hash
	if err := c.call(ctx, eth.StorageAt(addr, slot, nil).Returns(&val)); err != nil {
		return common.Hash{}, fmt.Errorf("eth_getStorageAt %s: %w", addr.Hex(), err)
	}
	return val, nil
}

// CallFunc executes a read-only contract call and decodes into returns.
func (c *Client) CallFunc(ctx context.Context, to common.Address, fn *w3.Func, args []any, returns ...any) error {
	if err := c.call(ctx, eth.CallFunc(to, fn, args...).Returns(returns...)); err != nil {
		return fmt.Errorf("eth_call %s: %w", to.Hex(), err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, calls ...w3types.RPCCaller) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	return c.rpc.CallCtx(ctx, calls...)
}
