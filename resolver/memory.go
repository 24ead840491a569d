package resolver

import "runtime"

// Pressure is how close heap use is to the resolver's memory budget.
type Pressure int

const (
	PressureNormal   Pressure = iota
	PressureWarning           // at least warnPercent of the budget
	PressureCritical          // at least criticalPercent of the budget
)

const (
	warnPercent     = 75
	criticalPercent = 90
)

func (p Pressure) String() string {
	switch p {
	case PressureWarning:
		return "warning"
	case PressureCritical:
		return "critical"
	default:
		return "normal"
	}
}

// MemoryWatcher compares live heap against a fixed budget. It is polled by
// the resolver while edges are buffered and is not safe for concurrent use.
type MemoryWatcher struct {
	limit    uint64
	readHeap func() uint64
}

// NewMemoryWatcher returns a watcher with a budget of limitMB megabytes.
// A non-positive budget disables the watcher.
func NewMemoryWatcher(limitMB int64) *MemoryWatcher {
	var limit uint64
	if limitMB > 0 {
		limit = uint64(limitMB) << 20
	}
	return &MemoryWatcher{limit: limit, readHeap: liveHeap}
}

// liveHeap reads HeapAlloc, the bytes held by reachable and not yet swept
// objects. Reserved but unused pages are not counted.
func liveHeap() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// Check samples the heap and returns its share of the budget as a
// percentage along with the matching pressure level.
func (m *MemoryWatcher) Check() (usedPercent float64, level Pressure) {
	if m.limit == 0 {
		return 0, PressureNormal
	}
	usedPercent = float64(m.readHeap()) * 100 / float64(m.limit)
	switch {
	case usedPercent >= criticalPercent:
		return usedPercent, PressureCritical
	case usedPercent >= warnPercent:
		return usedPercent, PressureWarning
	default:
		return usedPercent, PressureNormal
	}
}
