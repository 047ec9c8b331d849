package exchange

import "github.com/xtrntr/poolshare/internal/models"

// Observer is notified of engine events. Calls happen synchronously inside the
// operation that caused them, so implementations must not call back into the engine.
type Observer interface {
	OrderAdmitted(o models.Order)
	OrderRejected(err error)
	OrderCancelled(o models.Order)
	TradeExecuted(t models.Trade)
}

type nopObserver struct{}

func (nopObserver) OrderAdmitted(models.Order)  {}
func (nopObserver) OrderRejected(error)         {}
func (nopObserver) OrderCancelled(models.Order) {}
func (nopObserver) TradeExecuted(models.Trade)  {}
