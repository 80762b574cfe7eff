package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/dextrustee/dexbridge/internal/domain"
)

// Source reads OrderHandler logs from the chain over a plain HTTP RPC
// endpoint. It is stateless; the listener owns the block cursor.
type Source struct {
	client   *ethclient.Client
	rpcURL   string
	contract common.Address
	log      *slog.Logger
}

// NewSource dials the RPC endpoint and returns a Source scoped to the given
// contract address.
func NewSource(ctx context.Context, rpcURL, contractAddr string, log *slog.Logger) (*Source, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	return &Source{
		client:   client,
		rpcURL:   rpcURL,
		contract: common.HexToAddress(contractAddr),
		log:      log.With("component", "chain_source"),
	}, nil
}

// Close releases the underlying RPC connection.
func (s *Source) Close() {
	s.client.Close()
}

// Redial replaces the underlying RPC connection. The listener calls this
// after a failed cycle so a wedged connection does not poison every retry.
// The old client is kept if the new dial fails.
func (s *Source) Redial(ctx context.Context) error {
	client, err := ethclient.DialContext(ctx, s.rpcURL)
	if err != nil {
		return fmt.Errorf("chain: redial %s: %w", s.rpcURL, err)
	}
	s.client.Close()
	s.client = client
	s.log.Info("rpc connection re-established")
	return nil
}

// LatestBlock returns the chain head block number.
func (s *Source) LatestBlock(ctx context.Context) (uint64, error) {
	n, err := s.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain: block number: %w", err)
	}
	return n, nil
}

// FetchEvents filters the [from, to] block range (inclusive both ends) for
// OrderPlaced and AssetWithdrawn logs and returns the decoded events. Logs
// that fail to decode abort the whole fetch so the listener can retry the
// range rather than silently drop a log.
func (s *Source) FetchEvents(ctx context.Context, from, to uint64) ([]domain.OrderEvent, []domain.WithdrawalEvent, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{s.contract},
		Topics:    [][]common.Hash{{OrderPlacedTopic, AssetWithdrawnTopic}},
	}

	logs, err := s.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("chain: filter logs [%d,%d]: %w", from, to, err)
	}

	// One header fetch per distinct block in the batch; the timestamp is
	// stamped onto every event from that block.
	timestamps := make(map[uint64]time.Time)
	blockTime := func(n uint64) (time.Time, error) {
		if ts, ok := timestamps[n]; ok {
			return ts, nil
		}
		header, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(n))
		if err != nil {
			return time.Time{}, fmt.Errorf("chain: header %d: %w", n, err)
		}
		ts := time.Unix(int64(header.Time), 0).UTC()
		timestamps[n] = ts
		return ts, nil
	}

	var (
		orders      []domain.OrderEvent
		withdrawals []domain.WithdrawalEvent
	)
	for _, vLog := range logs {
		if vLog.Removed {
			s.log.Warn("skipping removed log", "tx_hash", vLog.TxHash.Hex(), "block", vLog.BlockNumber)
			continue
		}
		ts, err := blockTime(vLog.BlockNumber)
		if err != nil {
			return nil, nil, err
		}
		switch vLog.Topics[0] {
		case OrderPlacedTopic:
			ev, err := DecodeOrderPlacedLog(vLog)
			if err != nil {
				return nil, nil, err
			}
			ev.BlockTimestamp = ts
			orders = append(orders, ev)
		case AssetWithdrawnTopic:
			ev, err := DecodeAssetWithdrawnLog(vLog)
			if err != nil {
				return nil, nil, err
			}
			ev.BlockTimestamp = ts
			withdrawals = append(withdrawals, ev)
		}
	}

	return orders, withdrawals, nil
}
