package engine

// Observer receives progress callbacks while the engine runs. Callbacks are
// invoked synchronously on the engine goroutine.
type Observer interface {
	ModuleStarted(index, total int, id string)
	ModuleFinished(index, total int, record ExecutionRecord)
}

// Observers fans callbacks out to several observers in order.
type Observers []Observer

// ModuleStarted implements Observer.
func (o Observers) ModuleStarted(index, total int, id string) {
	for _, obs := range o {
		if obs != nil {
			obs.ModuleStarted(index, total, id)
		}
	}
}

// ModuleFinished implements Observer.
func (o Observers) ModuleFinished(index, total int, record ExecutionRecord) {
	for _, obs := range o {
		if obs != nil {
			obs.ModuleFinished(index, total, record)
		}
	}
}
