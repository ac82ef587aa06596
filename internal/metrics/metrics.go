package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	CyclesOpened     Counter
	CyclesClosed     Counter
	OrdersPlaced     Counter
	OrdersFailed     Counter
	RetriesExhausted Counter
	AlertsSent       Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		CyclesOpened:     n,
		CyclesClosed:     n,
		OrdersPlaced:     n,
		OrdersFailed:     n,
		RetriesExhausted: n,
		AlertsSent:       n,
	}
}
