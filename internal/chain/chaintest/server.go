// Package chaintest provides an in-process JSON-RPC chain for tests. It tracks
// nonces, turns signed creation transactions into contract accounts and serves
// receipts, code and storage. It does not execute EVM code.
package chaintest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultChainID is BSC testnet's chain id.
const DefaultChainID = 97

// Sent records one accepted transaction.
type Sent struct {
	Hash     common.Hash
	From     common.Address
	To       *common.Address // nil for contract creation
	Nonce    uint64
	Gas      uint64
	Data     []byte
	Created  common.Address // set for contract creation
	Reverted bool
}

// Server is a fake chain behind an httptest server.
type Server struct {
	*httptest.Server

	ChainID  *big.Int
	GasPrice *big.Int

	// Reject, when set, can refuse a transaction at broadcast time.
	Reject func(Sent) error
	// Revert, when set, marks a transaction as mined with status 0.
	Revert func(Sent) bool
	// OnMined runs after a transaction is accepted, e.g. to seed storage.
	OnMined func(s *Server, tx Sent)
	// Call answers eth_call. The default returns an RPC error.
	Call func(to common.Address, data []byte) ([]byte, error)
	// EstimateErr makes every eth_estimateGas fail.
	EstimateErr error
	// HideReceipts serves every receipt as pending.
	HideReceipts bool
	// BlockOffset is added to the reported block number.
	BlockOffset uint64
	// Latency delays every HTTP response.
	Latency time.Duration

	mu       sync.Mutex
	nonces   map[common.Address]uint64
	code     map[common.Address][]byte
	storage  map[common.Address]map[common.Hash]common.Hash
	receipts map[common.Hash]map[string]any
	sent     []Sent
	calls    []string
	mined    []Sent // awaiting OnMined, run outside the lock
}

// NewServer starts a fake chain and registers its shutdown with t.
func NewServer(t *testing.T) *Server {
	t.Helper()
	s := &Server{
		ChainID:  big.NewInt(DefaultChainID),
		GasPrice: big.NewInt(10_000_000_000),
		nonces:   make(map[common.Address]uint64),
		code:     make(map[common.Address][]byte),
		storage:  make(map[common.Address]map[common.Hash]common.Hash),
		receipts: make(map[common.Hash]map[string]any),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.Close)
	return s
}

// Sent returns every accepted transaction in broadcast order.
func (s *Server) Sent() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sent(nil), s.sent...)
}

// Methods returns the JSON-RPC methods served so far, in order.
func (s *Server) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// SetCode installs runtime code at addr.
func (s *Server) SetCode(addr common.Address, code []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code[addr] = code
}

// ClearCode removes the contract at addr, simulating a reset chain.
func (s *Server) ClearCode(addr common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.code, addr)
}

// SetStorage writes a storage slot.
func (s *Server) SetStorage(addr common.Address, slot, val common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storage[addr] == nil {
		s.storage[addr] = make(map[common.Hash]common.Hash)
	}
	s.storage[addr][slot] = val
}

type request struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	var body bytes.Buffer
	if _, err := body.ReadFrom(r.Body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if s.Latency > 0 {
		time.Sleep(s.Latency)
	}
	w.Header().Set("Content-Type", "application/json")

	raw := bytes.TrimSpace(body.Bytes())
	if len(raw) > 0 && raw[0] == '[' {
		var reqs []request
		if err := json.Unmarshal(raw, &reqs); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		out := make([]response, len(reqs))
		for i, req := range reqs {
			out[i] = s.handle(req)
		}
		json.NewEncoder(w).Encode(out) //nolint:errcheck
		return
	}

	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(s.handle(req)) //nolint:errcheck
}

func (s *Server) handle(req request) response {
	s.mu.Lock()
	s.calls = append(s.calls, req.Method)
	result, err := s.dispatch(req)
	mined := s.mined
	s.mined = nil
	s.mu.Unlock()

	if s.OnMined != nil {
		for _, tx := range mined {
			s.OnMined(s, tx)
		}
	}

	resp := response{JSONRPC: "2.0", ID: req.ID}
	if err != nil {
		resp.Error = &rpcError{Code: -32000, Message: err.Error()}
		return resp
	}
	if result == nil {
		// Explicit JSON null: pending receipt.
		resp.Result = json.RawMessage("null")
		return resp
	}
	resp.Result = result
	return resp
}

func (s *Server) dispatch(req request) (any, error) {
	switch req.Method {
	case "eth_chainId":
		return hexutil.EncodeBig(s.ChainID), nil

	case "eth_gasPrice":
		return hexutil.EncodeBig(s.GasPrice), nil

	case "eth_blockNumber":
		return hexutil.EncodeUint64(s.BlockOffset + uint64(len(s.sent))), nil

	case "eth_getTransactionCount":
		addr, err := addrParam(req.Params, 0)
		if err != nil {
			return nil, err
		}
		return hexutil.EncodeUint64(s.nonces[addr]), nil

	case "eth_estimateGas":
		if s.EstimateErr != nil {
			return nil, s.EstimateErr
		}
		return hexutil.EncodeUint64(1_000_000), nil

	case "eth_getCode":
		addr, err := addrParam(req.Params, 0)
		if err != nil {
			return nil, err
		}
		return hexutil.Encode(s.code[addr]), nil

	case "eth_getStorageAt":
		addr, err := addrParam(req.Params, 0)
		if err != nil {
			return nil, err
		}
		var slot string
		if len(req.Params) < 2 || json.Unmarshal(req.Params[1], &slot) != nil {
			return nil, errors.New("missing slot")
		}
		return s.storage[addr][common.HexToHash(slot)].Hex(), nil

	case "eth_call":
		return s.ethCall(req.Params)

	case "eth_sendRawTransaction":
		return s.sendRaw(req.Params)

	case "eth_getTransactionReceipt":
		var hash common.Hash
		if len(req.Params) < 1 || json.Unmarshal(req.Params[0], &hash) != nil {
			return nil, errors.New("missing tx hash")
		}
		if s.HideReceipts {
			return nil, nil
		}
		r, ok := s.receipts[hash]
		if !ok {
			return nil, nil
		}
		return r, nil
	}
	return nil, fmt.Errorf("the method %s does not exist/is not available", req.Method)
}

func (s *Server) ethCall(params []json.RawMessage) (any, error) {
	if len(params) < 1 {
		return nil, errors.New("missing call object")
	}
	var msg struct {
		To    common.Address `json:"to"`
		Data  hexutil.Bytes  `json:"data"`
		Input hexutil.Bytes  `json:"input"`
	}
	if err := json.Unmarshal(params[0], &msg); err != nil {
		return nil, err
	}
	if s.Call == nil {
		return nil, errors.New("execution reverted")
	}
	data := msg.Input
	if len(data) == 0 {
		data = msg.Data
	}
	out, err := s.Call(msg.To, data)
	if err != nil {
		return nil, err
	}
	return hexutil.Encode(out), nil
}

func (s *Server) sendRaw(params []json.RawMessage) (any, error) {
	var raw hexutil.Bytes
	if len(params) < 1 || json.Unmarshal(params[0], &raw) != nil {
		return nil, errors.New("missing raw transaction")
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("rlp: %w", err)
	}
	if tx.ChainId().Cmp(s.ChainID) != 0 {
		return nil, fmt.Errorf("invalid chain id %s", tx.ChainId())
	}
	from, err := types.Sender(types.LatestSignerForChainID(s.ChainID), tx)
	if err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}
	if want := s.nonces[from]; tx.Nonce() != want {
		return nil, fmt.Errorf("nonce too low: address %s, tx: %d state: %d", from.Hex(), tx.Nonce(), want)
	}

	sent := Sent{
		Hash:  tx.Hash(),
		From:  from,
		To:    tx.To(),
		Nonce: tx.Nonce(),
		Gas:   tx.Gas(),
		Data:  tx.Data(),
	}
	if sent.To == nil {
		sent.Created = crypto.CreateAddress(from, tx.Nonce())
	}
	if s.Reject != nil {
		if err := s.Reject(sent); err != nil {
			return nil, err
		}
	}
	if s.Revert != nil && s.Revert(sent) {
		sent.Reverted = true
	}

	s.nonces[from]++
	if sent.To == nil && !sent.Reverted {
		// Stand-in runtime code: any non-empty value marks the account as a contract.
		s.code[sent.Created] = append([]byte{0x60, 0x80}, crypto.Keccak256(sent.Data)[:8]...)
	}
	s.sent = append(s.sent, sent)
	s.receipts[sent.Hash] = s.receipt(sent, len(s.sent))
	if !sent.Reverted {
		s.mined = append(s.mined, sent)
	}
	return sent.Hash.Hex(), nil
}

func (s *Server) receipt(tx Sent, block int) map[string]any {
	status := "0x1"
	if tx.Reverted {
		status = "0x0"
	}
	var created any
	if tx.To == nil {
		created = tx.Created.Hex()
	}
	gasUsed := hexutil.EncodeUint64(21_000 + uint64(len(tx.Data))*16)
	return map[string]any{
		"type":              "0x2",
		"status":            status,
		"cumulativeGasUsed": gasUsed,
		"gasUsed":           gasUsed,
		"effectiveGasPrice": hexutil.EncodeBig(s.GasPrice),
		"logsBloom":         "0x" + strings.Repeat("0", 512),
		"logs":              []any{},
		"transactionHash":   tx.Hash.Hex(),
		"transactionIndex":  "0x0",
		"contractAddress":   created,
		"blockHash":         common.BigToHash(big.NewInt(int64(block))).Hex(),
		"blockNumber":       hexutil.EncodeUint64(uint64(block)),
		"from":              tx.From.Hex(),
		"to":                toField(tx.To),
	}
}

func toField(to *common.Address) any {
	if to == nil {
		return nil
	}
	return to.Hex()
}

func addrParam(params []json.RawMessage, i int) (common.Address, error) {
	var addr common.Address
	if len(params) <= i {
		return addr, errors.New("missing address param")
	}
	if err := json.Unmarshal(params[i], &addr); err != nil {
		return addr, fmt.Errorf("invalid address: %w", err)
	}
	return addr, nil
}
