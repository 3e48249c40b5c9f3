package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/webclinic017/GDA-v2/internal/events"
	"github.com/webclinic017/GDA-v2/internal/gateway"
	"github.com/webclinic017/GDA-v2/internal/monitor"
	"github.com/webclinic017/GDA-v2/pkg/db"
	"github.com/webclinic017/GDA-v2/pkg/exchanges/common"
)

// Executor sends orders to the gateway, journals them and emits updates.
type Executor struct {
	Gateway  gateway.Gateway
	DB       *db.Database
	Bus      *events.Bus
	Notifier monitor.Notifier

	DryRun bool
	Delay  time.Duration // pause after every submission

	mu      sync.Mutex
	cycleID string
	count   int
}

func NewExecutor(gw gateway.Gateway, database *db.Database, bus *events.Bus, notifier monitor.Notifier, dryRun bool, delay time.Duration) *Executor {
	if notifier == nil {
		notifier = monitor.Nop{}
	}
	return &Executor{
		Gateway:  gw,
		DB:       database,
		Bus:      bus,
		Notifier: notifier,
		DryRun:   dryRun,
		Delay:    delay,
	}
}

// BeginCycle tags subsequent journal rows with the cycle id and resets the
// order counter.
func (e *Executor) BeginCycle(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cycleID = id
	e.count = 0
}

// Count is the number of orders accepted since BeginCycle.
func (e *Executor) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// Submit places the order and returns the exchange result. Rejections are
// journaled and returned as errors.
func (e *Executor) Submit(ctx context.Context, o Order) (common.OrderResult, error) {
	if o.Qty <= 0 {
		return common.OrderResult{}, fmt.Errorf("order %s: quantity %v must be positive", o.ClientID, o.Qty)
	}
	evt := events.OrderEvent{
		Symbol:     o.Symbol,
		ClientID:   o.ClientID,
		Side:       string(o.Side),
		Type:       string(o.Type),
		Qty:        o.Qty,
		Price:      o.Price,
		ReduceOnly: o.ReduceOnly,
	}
	e.Bus.Publish(events.EventOrderSubmitted, evt)

	res, err := e.Gateway.PlaceOrder(ctx, o.Request())
	if err != nil {
		log.Printf("❌ order %s rejected: %v", o.ClientID, err)
		evt.Status = string(common.StatusRejected)
		evt.Error = err.Error()
		e.Bus.Publish(events.EventOrderRejected, evt)
		e.journal(ctx, o, common.OrderResult{Status: common.StatusRejected}, err)
		return common.OrderResult{}, fmt.Errorf("place order %s: %w", o.ClientID, err)
	}

	evt.Status = string(res.Status)
	e.Bus.Publish(events.EventOrderAccepted, evt)
	e.journal(ctx, o, res, nil)

	e.mu.Lock()
	e.count++
	e.mu.Unlock()

	msg := Describe(o)
	log.Printf("✅ %s", msg)
	e.Notifier.Notify(ctx, msg)

	if e.Delay > 0 {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(e.Delay):
		}
	}
	return res, nil
}

// Describe renders the human-readable order line sent to the chats.
func Describe(o Order) string {
	msg := fmt.Sprintf("created a %s order (%s) to %s #%s %s @ %s",
		strings.ToLower(string(o.Type)), o.ClientID, strings.ToLower(string(o.Side)), o.Symbol,
		formatNumber(math.Abs(o.Qty)), formatNumber(o.Price))
	if o.ReduceOnly {
		msg = "CLOSE ORDER | " + msg
	}
	return msg
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (e *Executor) journal(ctx context.Context, o Order, res common.OrderResult, execErr error) {
	if e.DB == nil {
		return
	}
	e.mu.Lock()
	cycleID := e.cycleID
	e.mu.Unlock()

	row := db.Order{
		CycleID:         cycleID,
		Symbol:          o.Symbol,
		ClientOrderID:   o.ClientID,
		ExchangeOrderID: res.ExchangeOrderID,
		Side:            string(o.Side),
		Type:            string(o.Type),
		Qty:             o.Qty,
		Price:           o.Price,
		AvgPrice:        res.AvgPrice,
		ReduceOnly:      o.ReduceOnly,
		Status:          string(res.Status),
		Reason:          o.Reason,
		DryRun:          e.DryRun,
	}
	if execErr != nil {
		row.Error = execErr.Error()
	}
	if err := e.DB.CreateOrder(ctx, row); err != nil {
		log.Printf("⚠️ executor: store order error: %v", err)
	}
}

// IsRejection reports whether err is a definitive exchange refusal rather
// than a transport or availability failure.
func IsRejection(err error) bool {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return !apiErr.Temporary() && !errors.Is(err, gateway.ErrRetriesExhausted)
	}
	return false
}
