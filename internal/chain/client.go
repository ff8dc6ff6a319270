package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/swayfi/dca-engine/internal/logger"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

const rewardPoolABIJSON = `[
	{"constant":false,"inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"name":"deposit","outputs":[],"type":"function"}
]`

var (
	erc20ABI      abi.ABI
	rewardPoolABI abi.ABI
)

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("invalid erc20 abi: " + err.Error())
	}
	rewardPoolABI, err = abi.JSON(strings.NewReader(rewardPoolABIJSON))
	if err != nil {
		panic("invalid reward pool abi: " + err.Error())
	}
}

// receiptPollInterval controls how often WaitMined checks for a receipt.
const receiptPollInterval = 3 * time.Second

// Client wraps an EVM JSON-RPC endpoint with the read and submission
// operations the engine needs. All methods are safe for sequential use
// within a cycle; nothing here is shared mutable state.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
}

// Dial connects to the RPC endpoint and resolves the chain ID.
func Dial(ctx context.Context, rpcURL string) (*Client, error) {
	if strings.TrimSpace(rpcURL) == "" {
		return nil, fmt.Errorf("rpc url is required")
	}

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rpc endpoint: %w", err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("failed to resolve chain id: %w", err)
	}

	return &Client{eth: eth, chainID: chainID}, nil
}

// ChainID returns the connected chain's ID.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}

// ERC20Balance reads the token balance of holder via eth_call.
func (c *Client) ERC20Balance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", holder)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf call: %w", err)
	}

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call failed: %w", err)
	}

	results, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf result: %w", err)
	}

	balance, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", results[0])
	}
	return balance, nil
}

// WaitMined polls for the receipt of txHash until it lands or the timeout
// expires. A timeout here does not mean the transaction failed; it may
// still land later, which is why callers classify it as retryable and the
// ledger write is idempotent.
func (c *Client) WaitMined(ctx context.Context, txHash common.Hash, timeout time.Duration) (*coretypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if err != ethereum.NotFound && ctx.Err() == nil {
			logger.Debug("receipt lookup failed, will poll again",
				zap.String("tx_hash", txHash.Hex()),
				zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for receipt of %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// PackERC20Transfer encodes transfer(to, amount) calldata.
func PackERC20Transfer(to common.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20ABI.Pack("transfer", to, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack transfer call: %w", err)
	}
	return data, nil
}

// PackRewardDeposit encodes deposit(token, amount) calldata for the reward
// distribution contract.
func PackRewardDeposit(token common.Address, amount *big.Int) ([]byte, error) {
	data, err := rewardPoolABI.Pack("deposit", token, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack deposit call: %w", err)
	}
	return data, nil
}

// Selector returns the 4-byte function selector of packed calldata.
func Selector(data []byte) [4]byte {
	var sel [4]byte
	copy(sel[:], data)
	return sel
}

// TxSigner signs transactions on behalf of the operator. Key management
// and the signature scheme live outside the engine.
type TxSigner interface {
	Address() common.Address
	SignTx(tx *coretypes.Transaction, chainID *big.Int) (*coretypes.Transaction, error)
}

// OperatorSender submits operator-paid transactions directly, used when the
// executor funds its own gas instead of routing through the bundler.
type OperatorSender struct {
	client *Client
	signer TxSigner
}

// NewOperatorSender builds a direct sender over client using signer.
func NewOperatorSender(client *Client, signer TxSigner) *OperatorSender {
	return &OperatorSender{client: client, signer: signer}
}

// Submit builds, signs and broadcasts a transaction to target carrying data.
func (s *OperatorSender) Submit(ctx context.Context, target common.Address, value *big.Int, data []byte) (common.Hash, error) {
	from := s.signer.Address()

	nonce, err := s.client.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch pending nonce: %w", err)
	}

	gasPrice, err := s.client.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch gas price: %w", err)
	}

	gasLimit, err := s.client.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &target,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas estimation failed: %w", err)
	}

	tx := coretypes.NewTransaction(nonce, target, value, gasLimit, gasPrice, data)
	signed, err := s.signer.SignTx(tx, s.client.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.client.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to broadcast transaction: %w", err)
	}

	logger.Debug("transaction broadcast",
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.String("target", target.Hex()),
		zap.Uint64("nonce", nonce))

	return signed.Hash(), nil
}
