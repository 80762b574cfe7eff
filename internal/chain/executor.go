package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/dextrustee/dexbridge/internal/domain"
)

// weiPerEther converts ether-denominated settlement amounts to wei.
var weiPerEther = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// Executor submits withdraw() transactions against the OrderHandler contract.
// The contract only honours calls from its owner, so the signing key must be
// the deployer key.
type Executor struct {
	client   *ethclient.Client
	contract common.Address
	token    common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	gasLimit uint64
	log      *slog.Logger
}

// NewExecutor dials the RPC endpoint and prepares a signing executor.
// privateKeyHex is the raw hex key without 0x prefix (as returned by
// crypto.LoadKey). tokenAddr is the settlement token; the aliases "eth",
// "0x0" and the zero address all mean native ETH.
func NewExecutor(ctx context.Context, rpcURL, contractAddr, tokenAddr, privateKeyHex string, chainID int64, gasLimit uint64, log *slog.Logger) (*Executor, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}

	key, err := ethcrypto.HexToECDSA(privateKeyHex)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain: parse private key: %w", err)
	}

	return &Executor{
		client:   client,
		contract: common.HexToAddress(contractAddr),
		token:    normalizeToken(tokenAddr),
		key:      key,
		from:     ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID:  big.NewInt(chainID),
		gasLimit: gasLimit,
		log:      log.With("component", "executor"),
	}, nil
}

// normalizeToken maps the ETH aliases onto the zero address and everything
// else through HexToAddress.
func normalizeToken(addr string) common.Address {
	switch strings.ToLower(addr) {
	case "", "eth", "0x0", "0x0000000000000000000000000000000000000000":
		return common.Address{}
	default:
		return common.HexToAddress(addr)
	}
}

// Close releases the underlying RPC connection.
func (e *Executor) Close() {
	e.client.Close()
}

// From returns the signer address.
func (e *Executor) From() common.Address {
	return e.from
}

// Settle transfers amountEther of the settlement token to recipient by
// calling withdraw() on the contract, waits for the transaction to be mined,
// and returns the transaction hash. Returns domain.ErrNotOwner when the
// signing key does not control the contract and domain.ErrTxReverted when the
// transaction is mined with a failed status.
func (e *Executor) Settle(ctx context.Context, recipient string, amountEther float64) (string, error) {
	owner, err := e.contractOwner(ctx)
	if err != nil {
		return "", err
	}
	if owner != e.from {
		return "", fmt.Errorf("chain: owner is %s, signer is %s: %w", owner.Hex(), e.from.Hex(), domain.ErrNotOwner)
	}

	amountWei, _ := new(big.Float).Mul(big.NewFloat(amountEther), weiPerEther).Int(nil)

	data, err := handlerABI.Pack("withdraw", e.token, common.HexToAddress(recipient), amountWei)
	if err != nil {
		return "", fmt.Errorf("chain: pack withdraw: %w", err)
	}

	nonce, err := e.client.PendingNonceAt(ctx, e.from)
	if err != nil {
		return "", fmt.Errorf("chain: pending nonce: %w", err)
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("chain: gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, e.contract, big.NewInt(0), e.gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(e.chainID), e.key)
	if err != nil {
		return "", fmt.Errorf("chain: sign tx: %w", err)
	}

	if err := e.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("chain: send tx: %w", err)
	}

	e.log.Info("settlement transaction sent",
		"tx_hash", signed.Hash().Hex(),
		"recipient", recipient,
		"amount_wei", amountWei.String())

	// A sent transaction cannot be un-sent; shutdown must not abandon the
	// receipt wait, or the record would show a failure for a transfer that
	// lands anyway.
	receipt, err := bind.WaitMined(context.WithoutCancel(ctx), e.client, signed)
	if err != nil {
		return "", fmt.Errorf("chain: wait mined %s: %w", signed.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("chain: tx %s: %w", signed.Hash().Hex(), domain.ErrTxReverted)
	}

	e.log.Info("settlement transaction confirmed",
		"tx_hash", signed.Hash().Hex(),
		"block", receipt.BlockNumber.Uint64(),
		"gas_used", receipt.GasUsed)

	return signed.Hash().Hex(), nil
}

// contractOwner calls the contract's owner() view.
func (e *Executor) contractOwner(ctx context.Context) (common.Address, error) {
	data, err := handlerABI.Pack("owner")
	if err != nil {
		return common.Address{}, fmt.Errorf("chain: pack owner: %w", err)
	}

	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &e.contract, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("chain: call owner: %w", err)
	}

	results, err := handlerABI.Unpack("owner", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("chain: unpack owner: %w", err)
	}
	owner := *abi.ConvertType(results[0], new(common.Address)).(*common.Address)
	return owner, nil
}
