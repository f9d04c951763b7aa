package dashboard

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dfortune/fortuna/contracts"
	"github.com/dfortune/fortuna/core"
	"github.com/dfortune/fortuna/ports"
)

// ContractReader is the subset of typed contract reads the dashboard needs.
// *contracts.Reader satisfies it.
type ContractReader interface {
	CurrentDraw(ctx context.Context) (*contracts.Draw, error)
	TicketPrice(ctx context.Context) (*big.Int, error)
	HasBetBefore(ctx context.Context, player common.Address) (bool, error)
	Discount(ctx context.Context, player common.Address) (*big.Int, error)
	LossStreak(ctx context.Context, player common.Address) (*big.Int, error)
}

// DrawView is the current draw as presented to the dashboard.
type DrawView struct {
	ID        string          `json:"id"`
	EndTime   time.Time       `json:"endTime"`
	Status    string          `json:"status"`
	PrizePool decimal.Decimal `json:"prizePool"` // ether
}

// Data is the assembled per-account dashboard payload.
type Data struct {
	Address      string          `json:"address"`
	CurrentDraw  DrawView        `json:"currentDraw"`
	TicketPrice  decimal.Decimal `json:"ticketPrice"` // ether
	DiscountBPS  int64           `json:"discount"`
	LossStreak   int64           `json:"lossStreak"`
	HasBetBefore bool            `json:"hasBetBefore"`
	LastLogin    *time.Time      `json:"lastLogin,omitempty"`
}

var drawStatusNames = map[uint8]string{
	0: "open",
	1: "drawing",
	2: "completed",
	3: "cancelled",
}

// weiToEther converts a wei amount to an ether-denominated decimal.
func weiToEther(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -18)
}

// Service assembles dashboard data from contract reads and the account store.
type Service struct {
	reader ContractReader
	store  ports.UserStore
	log    *zap.Logger
}

// NewService creates a new dashboard service.
func NewService(reader ContractReader, store ports.UserStore, log *zap.Logger) *Service {
	return &Service{reader: reader, store: store, log: log}
}

// ForAddress assembles the dashboard payload for address.
func (s *Service) ForAddress(ctx context.Context, address string) (*Data, error) {
	addr := core.NormalizeAddress(address)
	if addr == "" {
		return nil, core.ErrInvalidAddress
	}
	player := common.HexToAddress(addr)

	draw, err := s.reader.CurrentDraw(ctx)
	if err != nil {
		return nil, err
	}
	price, err := s.reader.TicketPrice(ctx)
	if err != nil {
		return nil, err
	}
	hasBet, err := s.reader.HasBetBefore(ctx, player)
	if err != nil {
		return nil, err
	}
	discount, err := s.reader.Discount(ctx, player)
	if err != nil {
		return nil, err
	}
	streak, err := s.reader.LossStreak(ctx, player)
	if err != nil {
		return nil, err
	}

	status, ok := drawStatusNames[draw.Status]
	if !ok {
		status = "unknown"
	}

	data := &Data{
		Address: addr,
		CurrentDraw: DrawView{
			ID:        draw.ID.String(),
			EndTime:   time.Unix(draw.EndTime.Int64(), 0).UTC(),
			Status:    status,
			PrizePool: weiToEther(draw.PrizePool),
		},
		TicketPrice:  weiToEther(price),
		DiscountBPS:  discount.Int64(),
		LossStreak:   streak.Int64(),
		HasBetBefore: hasBet,
	}

	// Profile data is best effort: an address that never authenticated still
	// gets its on-chain view.
	user, err := s.store.GetUser(ctx, addr)
	switch {
	case err == nil:
		t := user.LastLogin
		data.LastLogin = &t
	case errors.Is(err, core.ErrUserNotFound):
	default:
		s.log.Warn("failed to load account record", zap.String("address", addr), zap.Error(err))
	}

	return data, nil
}
