package monitor

import (
	"context"
	"log"

	"github.com/webclinic017/GDA-v2/internal/events"
)

// Monitor turns bus events into metrics.
type Monitor struct {
	Bus     *events.Bus
	Metrics *Metrics
}

// Start consumes events until ctx is done. The returned channel closes
// once the consumer has stopped.
func (m *Monitor) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if m.Bus == nil || m.Metrics == nil {
		log.Println("monitor not fully configured; skipping")
		close(done)
		return done
	}
	stream, stop := m.Bus.SubscribeMany(events.AllEvents, 100)
	go func() {
		defer close(done)
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-stream:
				if !ok {
					return
				}
				m.handle(env)
			}
		}
	}()
	return done
}

func (m *Monitor) handle(env events.Envelope) {
	switch p := env.Payload.(type) {
	case events.OrderEvent:
		switch env.Event {
		case events.EventOrderAccepted:
			m.Metrics.ObserveOrder(p.Side, "accepted")
		case events.EventOrderRejected:
			m.Metrics.ObserveOrder(p.Side, "rejected")
		}
	case events.PositionEvent:
		switch env.Event {
		case events.EventStopTriggered:
			m.Metrics.IncStopTriggers()
		case events.EventStopMoved:
			m.Metrics.IncStopMoves()
		case events.EventTakeProfit:
			m.Metrics.IncTakeProfits()
		case events.EventPositionClosed:
			m.Metrics.ObserveClose(p.Reason)
		}
	case events.ReconcileEvent:
		m.Metrics.ObserveCorrection(p.Kind)
	case events.CycleEvent:
		var err error
		if p.Error != "" {
			err = errCycle(p.Error)
		}
		m.Metrics.ObserveCycle(p.Kind, p.Duration, err)
	case events.StatusEvent:
		m.Metrics.SetAccount(p.OpenPositions, p.Wallet, p.NAV)
	}
}

type errCycle string

func (e errCycle) Error() string { return string(e) }
