// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

// EventType identifies the kind of an [Event].
type EventType int

const (
	// EventTypeCustom is the type of [CustomEvent], and the conventional
	// base for application defined event types.
	EventTypeCustom EventType = iota
	// EventTypeTimer is the type of [TimerEvent].
	EventTypeTimer
	// EventTypeNotifierActivation is the type of [NotifierActivationEvent].
	EventTypeNotifierActivation
)

// String returns a human-readable representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventTypeCustom:
		return "Custom"
	case EventTypeTimer:
		return "Timer"
	case EventTypeNotifierActivation:
		return "NotifierActivation"
	default:
		return "Unknown"
	}
}

// Event is a value delivered to an [EventReceiver]. Ownership of an event
// passes to the loop on [EventLoop.PostEvent], and to the receiver on
// delivery.
type Event interface {
	EventType() EventType
}

// CustomEvent is a general purpose [Event].
type CustomEvent struct {
	Payload any
	// Kind is an application defined discriminator.
	Kind int
}

func (*CustomEvent) EventType() EventType { return EventTypeCustom }

// TimerEvent is delivered to the receiver of a timer registered via
// [RegisterTimer], each time it fires.
type TimerEvent struct {
	ID TimerID
}

func (*TimerEvent) EventType() EventType { return EventTypeTimer }

// NotifierActivationEvent reports descriptor readiness for a [Notifier].
type NotifierActivationEvent struct {
	Notifier *Notifier
	Events   IOEvents
	// generation of the registration the readiness was reported under
	generation uint64
}

func (*NotifierActivationEvent) EventType() EventType { return EventTypeNotifierActivation }

// EventReceiver is the target of posted events and timer ticks. The loop
// only references a receiver while an entry or registration for it exists.
type EventReceiver interface {
	// HandleEvent is called on the loop goroutine for each event posted to
	// the receiver.
	HandleEvent(ev Event)
	// HandleTimer is called on the loop goroutine each time a timer
	// registered for the receiver fires.
	HandleTimer(ev *TimerEvent)
}

// TimerVisibility may be implemented by an [EventReceiver] to suppress
// delivery of timers registered with [TimerShouldNotFireWhenNotVisible]
// while it reports itself as not visible.
type TimerVisibility interface {
	VisibleForTimers() bool
}

// ReceiverFuncs adapts functions to [EventReceiver]. Nil fields ignore the
// corresponding deliveries.
type ReceiverFuncs struct {
	OnEvent func(ev Event)
	OnTimer func(ev *TimerEvent)
}

var _ EventReceiver = (*ReceiverFuncs)(nil)

func (x *ReceiverFuncs) HandleEvent(ev Event) {
	if x.OnEvent != nil {
		x.OnEvent(ev)
	}
}

func (x *ReceiverFuncs) HandleTimer(ev *TimerEvent) {
	if x.OnTimer != nil {
		x.OnTimer(ev)
	}
}
