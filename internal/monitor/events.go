package monitor

import "time"

// EventType names the observable moments of a monitoring cycle.
type EventType string

const (
	EventCycleStarted  EventType = "cycle_started"
	EventItemAdmitted  EventType = "item_admitted"
	EventItemFiltered  EventType = "item_filtered"
	EventCycleFinished EventType = "cycle_finished"
)

// Filter reasons carried on EventItemFiltered events.
const (
	ReasonWatermark  = "watermark"
	ReasonTimeWindow = "time_window"
	ReasonDuplicate  = "duplicate"
	ReasonCountry    = "country"
	ReasonBanword    = "banword"
)

// Event is one structured engine event. Listeners (log sink, UI, metrics)
// consume these independently; the engine has no notion of a live subscriber.
type Event struct {
	Type     EventType `json:"type"`
	QueryID  int64     `json:"query_id,omitempty"`
	ItemID   int64     `json:"item_id,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	NewItems int       `json:"new_items,omitempty"`
	At       time.Time `json:"at"`
}

// Listener receives engine events. Listeners must not block.
type Listener func(Event)

// Subscribe registers a listener. Call before Start / the first check;
// registration is not synchronized against a running cycle.
func (m *Monitor) Subscribe(l Listener) {
	m.listeners = append(m.listeners, l)
}

func (m *Monitor) emit(e Event) {
	e.At = m.now()
	for _, l := range m.listeners {
		l(e)
	}
}
