package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Backend is the subset of an Ethereum client needed for read-only calls.
// *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Draw mirrors the LotteryManager getCurrentDraw() return tuple.
type Draw struct {
	ID        *big.Int
	EndTime   *big.Int
	Status    uint8
	PrizePool *big.Int
}

// Reader performs typed read calls against the deployed lottery contracts.
type Reader struct {
	registry *Registry
	backend  Backend
}

// NewReader creates a new reader.
func NewReader(registry *Registry, backend Backend) *Reader {
	return &Reader{registry: registry, backend: backend}
}

func (r *Reader) call(ctx context.Context, contract, method string, args ...interface{}) ([]interface{}, error) {
	parsed, err := r.registry.ABI(ctx, contract)
	if err != nil {
		return nil, err
	}
	addr, err := r.registry.Address(contract)
	if err != nil {
		return nil, err
	}

	input, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s.%s: %w", contract, method, err)
	}

	output, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s.%s failed: %w", contract, method, err)
	}

	results, err := parsed.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s.%s: %w", contract, method, err)
	}
	return results, nil
}

func (r *Reader) bigInt(ctx context.Context, contract, method string, args ...interface{}) (*big.Int, error) {
	results, err := r.call(ctx, contract, method, args...)
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("%s.%s: unexpected result arity %d", contract, method, len(results))
	}
	v, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s.%s: unexpected result type %T", contract, method, results[0])
	}
	return v, nil
}

// CurrentDrawID returns the id of the draw currently open.
func (r *Reader) CurrentDrawID(ctx context.Context) (*big.Int, error) {
	return r.bigInt(ctx, LotteryManager, "currentDrawId")
}

// TicketPrice returns the ticket price in wei.
func (r *Reader) TicketPrice(ctx context.Context) (*big.Int, error) {
	return r.bigInt(ctx, LotteryManager, "ticketPrice")
}

// CurrentDraw returns the currently open draw.
func (r *Reader) CurrentDraw(ctx context.Context) (*Draw, error) {
	results, err := r.call(ctx, LotteryManager, "getCurrentDraw")
	if err != nil {
		return nil, err
	}
	if len(results) != 4 {
		return nil, fmt.Errorf("getCurrentDraw: unexpected result arity %d", len(results))
	}

	draw := &Draw{}
	var ok bool
	if draw.ID, ok = results[0].(*big.Int); !ok {
		return nil, fmt.Errorf("getCurrentDraw: unexpected id type %T", results[0])
	}
	if draw.EndTime, ok = results[1].(*big.Int); !ok {
		return nil, fmt.Errorf("getCurrentDraw: unexpected endTime type %T", results[1])
	}
	if draw.Status, ok = results[2].(uint8); !ok {
		return nil, fmt.Errorf("getCurrentDraw: unexpected status type %T", results[2])
	}
	if draw.PrizePool, ok = results[3].(*big.Int); !ok {
		return nil, fmt.Errorf("getCurrentDraw: unexpected prizePool type %T", results[3])
	}
	return draw, nil
}

// HasBetBefore reports whether player ever bought a ticket.
func (r *Reader) HasBetBefore(ctx context.Context, player common.Address) (bool, error) {
	results, err := r.call(ctx, FORT, "hasBetBefore", player)
	if err != nil {
		return false, err
	}
	if len(results) != 1 {
		return false, fmt.Errorf("hasBetBefore: unexpected result arity %d", len(results))
	}
	v, ok := results[0].(bool)
	if !ok {
		return false, fmt.Errorf("hasBetBefore: unexpected result type %T", results[0])
	}
	return v, nil
}

// Discount returns the loyalty discount for player, in basis points.
func (r *Reader) Discount(ctx context.Context, player common.Address) (*big.Int, error) {
	return r.bigInt(ctx, LoyaltyTracker, "getDiscount", player)
}

// LossStreak returns the consecutive losing draws for player.
func (r *Reader) LossStreak(ctx context.Context, player common.Address) (*big.Int, error) {
	return r.bigInt(ctx, LoyaltyTracker, "lossStreak", player)
}
