package anchor

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
)

// BitcoinRPC is the verification-side node contract of spec.md §6: the
// three calls needed to resolve a height to a merkle root and timestamp.
type BitcoinRPC interface {
	GetBlockCount(ctx context.Context) (uint64, error)
	GetBlockHash(ctx context.Context, height uint64) ([32]byte, error)
	GetBlockHeader(ctx context.Context, hash [32]byte) (merkleRoot [32]byte, nTime uint32, err error)
}

// BitcoinOracle adapts a BitcoinRPC to the attestation.BitcoinOracle
// interface attestation.BitcoinBlockHeader.Verify consumes.
type BitcoinOracle struct {
	rpc BitcoinRPC
	ctx context.Context
}

// NewBitcoinOracle wraps rpc for verification calls made under ctx.
func NewBitcoinOracle(ctx context.Context, rpc BitcoinRPC) *BitcoinOracle {
	return &BitcoinOracle{rpc: rpc, ctx: ctx}
}

// MerkleRootAtHeight implements attestation.BitcoinOracle.
func (o *BitcoinOracle) MerkleRootAtHeight(height uint64) ([32]byte, uint32, error) {
	hash, err := o.rpc.GetBlockHash(o.ctx, height)
	if err != nil {
		return [32]byte{}, 0, fmt.Errorf("anchor: getblockhash(%d): %w", height, err)
	}
	root, nTime, err := o.rpc.GetBlockHeader(o.ctx, hash)
	if err != nil {
		return [32]byte{}, 0, fmt.Errorf("anchor: getblockheader(%x): %w", hash, err)
	}
	return root, nTime, nil
}

// JSONRPCBitcoinClient is a minimal Bitcoin Core JSON-RPC client
// implementing BitcoinRPC over HTTP basic auth.
type JSONRPCBitcoinClient struct {
	Endpoint string
	User     string
	Pass     string
	Client   *http.Client
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *JSONRPCBitcoinClient) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	body, err := json.Marshal(rpcRequest{JSONRPC: "1.0", ID: "chronoproof", Method: method, Params: params})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.User != "" {
		req.SetBasicAuth(c.User, c.Pass)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return err
	}
	if rr.Error != nil {
		return fmt.Errorf("anchor: rpc error %d: %s", rr.Error.Code, rr.Error.Message)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rr.Result, out)
}

func (c *JSONRPCBitcoinClient) GetBlockCount(ctx context.Context) (uint64, error) {
	var height uint64
	err := c.call(ctx, "getblockcount", nil, &height)
	return height, err
}

func (c *JSONRPCBitcoinClient) GetBlockHash(ctx context.Context, height uint64) ([32]byte, error) {
	var hexHash string
	if err := c.call(ctx, "getblockhash", []interface{}{height}, &hexHash); err != nil {
		return [32]byte{}, err
	}
	return decodeHash(hexHash)
}

type blockHeaderJSON struct {
	Time          uint32 `json:"time"`
	MerkleRoot    string `json:"merkleroot"`
}

func (c *JSONRPCBitcoinClient) GetBlockHeader(ctx context.Context, hash [32]byte) ([32]byte, uint32, error) {
	var header blockHeaderJSON
	if err := c.call(ctx, "getblockheader", []interface{}{hex.EncodeToString(hash[:])}, &header); err != nil {
		return [32]byte{}, 0, err
	}
	root, err := decodeHash(header.MerkleRoot)
	if err != nil {
		return [32]byte{}, 0, err
	}
	return root, header.Time, nil
}

func decodeHash(hexStr string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("anchor: expected 32-byte hash, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// EthereumHeaderSource resolves a block header by height, e.g. an
// ethclient.Client's HeaderByNumber.
type EthereumHeaderSource interface {
	HeaderByHeight(ctx context.Context, height uint64) (*types.Header, error)
}

// EthereumOracle adapts an EthereumHeaderSource to
// attestation.EthereumOracle, treating the header's TxHash field as the
// "transactionsRoot" spec.md §4.C names. Filed as a "dubious" attestation
// path: TxHash commits to the block's own transaction list, not to
// anything this module submitted, so the attestation only proves a given
// digest appeared at that height via whatever out-of-band mechanism wrote
// it there (e.g. an OP_RETURN-equivalent contract call indexed elsewhere).
type EthereumOracle struct {
	source EthereumHeaderSource
	ctx    context.Context
}

// NewEthereumOracle wraps source for verification calls made under ctx.
func NewEthereumOracle(ctx context.Context, source EthereumHeaderSource) *EthereumOracle {
	return &EthereumOracle{source: source, ctx: ctx}
}

// TransactionsRootAtHeight implements attestation.EthereumOracle.
func (o *EthereumOracle) TransactionsRootAtHeight(height uint64) ([32]byte, uint64, error) {
	header, err := o.source.HeaderByHeight(o.ctx, height)
	if err != nil {
		return [32]byte{}, 0, fmt.Errorf("anchor: header at height %d: %w", height, err)
	}
	return [32]byte(header.TxHash), header.Time, nil
}
