package log

import (
	"testing"
	"time"
)

func TestNoopLoggerAcceptsEveryPayload(t *testing.T) {
	var logger Logger = NoopLogger{}

	event := Event{Timestamp: time.Now(), SessionID: "s", Layer: LayerTransport}
	for _, mutate := range []func(*Event){
		func(e *Event) { e.Data = NewDataEvent([]byte{1, 2, 3}) },
		func(e *Event) { e.Notify = &NotifyEvent{Kind: "ACCEPT"} },
		func(e *Event) { e.StateChange = &StateChangeEvent{Entity: StateEntitySession, NewState: "STARTED"} },
		func(e *Event) { e.Error = &ErrorEventData{Message: "boom"} },
	} {
		ev := event
		mutate(&ev)
		logger.Log(ev)
	}
}

func TestLoggerFunc(t *testing.T) {
	var got []string
	l := LoggerFunc(func(e Event) { got = append(got, e.SessionID) })
	l.Log(Event{SessionID: "a"})
	l.Log(Event{SessionID: "b"})

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("got %v", got)
	}
}

func TestFilteredLogger(t *testing.T) {
	var got []Event
	sink := LoggerFunc(func(e Event) { got = append(got, e) })

	cat := CategoryError
	l := Filtered(sink, Filter{SessionID: "ab", Category: &cat})

	l.Log(Event{SessionID: "abc", Category: CategoryError})
	l.Log(Event{SessionID: "abc", Category: CategoryData})
	l.Log(Event{SessionID: "xyz", Category: CategoryError})

	if len(got) != 1 || got[0].SessionID != "abc" {
		t.Errorf("filtered events = %+v, want only the abc error", got)
	}
}
