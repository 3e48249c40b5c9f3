package gateway

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/webclinic017/GDA-v2/pkg/exchanges/common"
)

// Mode describes whether orders reach the exchange.
type Mode string

const (
	ModeProduction Mode = "PRODUCTION"
	ModeDryRun     Mode = "DRY_RUN"
)

// DryRun reads from the wrapped gateway but never places or cancels orders.
// Market orders are acknowledged as filled, limit orders as resting.
type DryRun struct {
	Gateway
	seq    atomic.Int64
	mu     sync.Mutex
	placed map[string]OrderInfo
}

// NewDryRun wraps next.
func NewDryRun(next Gateway) *DryRun {
	return &DryRun{Gateway: next, placed: make(map[string]OrderInfo)}
}

func (d *DryRun) PlaceOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	id := d.seq.Add(1)
	log.Printf("🧪 [DRY RUN] skipped %s %s %s %v (%s) reduceOnly=%v", req.Type, req.Side, req.Symbol, req.Qty, req.ClientID, req.ReduceOnly)
	res := common.OrderResult{
		ExchangeOrderID: "dry-" + formatID(id),
		Status:          common.StatusFilled,
		ClientID:        req.ClientID,
		ExecutedQty:     req.Qty,
	}
	if req.Type == common.OrderTypeLimit {
		res.Status = common.StatusNew
		res.ExecutedQty = 0
	}
	d.mu.Lock()
	d.placed[req.ClientID] = OrderInfo{
		Symbol:      req.Symbol,
		ClientID:    req.ClientID,
		ExchangeID:  res.ExchangeOrderID,
		Side:        req.Side,
		Type:        req.Type,
		Status:      res.Status,
		Price:       req.Price,
		OrigQty:     req.Qty,
		ExecutedQty: res.ExecutedQty,
		ReduceOnly:  req.ReduceOnly,
	}
	d.mu.Unlock()
	return res, nil
}

// FetchOrder answers for orders this wrapper acknowledged.
func (d *DryRun) FetchOrder(ctx context.Context, symbol, clientID string) (OrderInfo, error) {
	d.mu.Lock()
	o, ok := d.placed[clientID]
	d.mu.Unlock()
	if !ok {
		return OrderInfo{}, fmt.Errorf("dry run: order %s not found", clientID)
	}
	return o, nil
}

func (d *DryRun) CancelAllOrders(ctx context.Context, symbol string) error {
	log.Printf("🧪 [DRY RUN] skipped cancel all orders on %s", symbol)
	return nil
}
