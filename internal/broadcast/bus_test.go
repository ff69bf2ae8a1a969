package broadcast

import "testing"

func TestBusDeliversByTopic(t *testing.T) {
	var bus Bus
	var tracer, todo []Event

	bus.Subscribe(TracerUpdated, func(ev Event) { tracer = append(tracer, ev) })
	bus.Subscribe(TodoDeleted, func(ev Event) { todo = append(todo, ev) })

	bus.Publish(Event{Topic: TracerUpdated, ID: "p1"})
	bus.Publish(Event{Topic: TodoDeleted, ID: "t1"})
	bus.Publish(Event{Topic: TracerDeleted, ID: "p2"})

	if len(tracer) != 1 || tracer[0].ID != "p1" {
		t.Errorf("tracer subscriber got %+v", tracer)
	}
	if len(todo) != 1 || todo[0].ID != "t1" {
		t.Errorf("todo subscriber got %+v", todo)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := New()
	count := 0
	unsubscribe := bus.Subscribe(TodoUpdated, func(Event) { count++ })

	bus.Publish(Event{Topic: TodoUpdated})
	unsubscribe()
	unsubscribe()
	bus.Publish(Event{Topic: TodoUpdated})

	if count != 1 {
		t.Errorf("expected 1 delivery, got %d", count)
	}
}

func TestNilBusDrops(t *testing.T) {
	var bus *Bus
	bus.Publish(Event{Topic: TracerUpdated})
}
