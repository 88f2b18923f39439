package engine

import "sort"

// VehicleQueue sequences vehicles by their order key and tracks the one
// currently accepting passengers.
type VehicleQueue struct {
	vehicles    []*Vehicle
	active      int
	exhausted   bool
	onRetire    []func(*Vehicle)
	onAdvance   []func(*Vehicle)
	onExhausted []func()
}

// NewVehicleQueue returns an empty, exhausted queue. Call Initialize to load it.
func NewVehicleQueue() *VehicleQueue {
	return &VehicleQueue{exhausted: true}
}

// Initialize loads specs sorted ascending by Order. Ties keep list order.
// An empty list leaves the queue exhausted without raising a signal.
func (q *VehicleQueue) Initialize(specs []VehicleSpec) {
	q.vehicles = make([]*Vehicle, 0, len(specs))
	for i, s := range specs {
		q.vehicles = append(q.vehicles, &Vehicle{
			Index:    i,
			Order:    s.Order,
			Color:    s.Color,
			Capacity: s.Capacity,
		})
	}
	sort.SliceStable(q.vehicles, func(i, j int) bool {
		return q.vehicles[i].Order < q.vehicles[j].Order
	})
	q.active = 0
	q.exhausted = len(q.vehicles) == 0
}

// OnRetire registers fn to run when a full vehicle leaves the stop.
func (q *VehicleQueue) OnRetire(fn func(*Vehicle)) {
	q.onRetire = append(q.onRetire, fn)
}

// OnAdvance registers fn to run after a new vehicle becomes active.
func (q *VehicleQueue) OnAdvance(fn func(*Vehicle)) {
	q.onAdvance = append(q.onAdvance, fn)
}

// OnExhausted registers fn to run once when the last vehicle retires.
func (q *VehicleQueue) OnExhausted(fn func()) {
	q.onExhausted = append(q.onExhausted, fn)
}

// ActiveVehicle returns the vehicle at the stop, or nil once exhausted.
func (q *VehicleQueue) ActiveVehicle() *Vehicle {
	if q.exhausted {
		return nil
	}
	return q.vehicles[q.active]
}

// Exhausted reports whether every vehicle has retired.
func (q *VehicleQueue) Exhausted() bool {
	return q.exhausted
}

// Vehicles returns the vehicles in arrival order.
func (q *VehicleQueue) Vehicles() []*Vehicle {
	return q.vehicles
}

// Remaining counts vehicles not yet retired, the active one included.
func (q *VehicleQueue) Remaining() int {
	if q.exhausted {
		return 0
	}
	return len(q.vehicles) - q.active
}

// OccupySeat fills one seat on v. It returns false unless v is the active
// vehicle with a free seat. Filling the last seat retires v and advances.
func (q *VehicleQueue) OccupySeat(v *Vehicle) bool {
	active := q.ActiveVehicle()
	if active == nil || v != active || active.Full() {
		return false
	}
	active.SeatsFilled++
	if active.Full() {
		q.advance()
	}
	return true
}

func (q *VehicleQueue) advance() {
	done := q.vehicles[q.active]
	done.retired = true
	for _, fn := range q.onRetire {
		fn(done)
	}
	q.active++
	if q.active >= len(q.vehicles) {
		q.exhausted = true
		for _, fn := range q.onExhausted {
			fn()
		}
		return
	}
	next := q.vehicles[q.active]
	for _, fn := range q.onAdvance {
		fn(next)
	}
}
