package core

import (
	"reflect"
	"sync"
)

type SystemEventCode int

const (
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	/* Context usage:
	 * width, height := data.U32[0], data.U32[1]
	 */
	EVENT_CODE_RESIZED SystemEventCode = 0x02

	/* Context usage:
	 * name, path := data.C[0], data.C[1]
	 */
	EVENT_CODE_FONT_ADDED SystemEventCode = 0x03

	/* Context usage:
	 * name, path := data.C[0], data.C[1]
	 */
	EVENT_CODE_FONT_REMOVED SystemEventCode = 0x04

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

type EventContext struct {
	Code SystemEventCode
	Data struct {
		U32 [2]uint32
		C   [2]string
	}
}

// FnOnEvent returns true when the event is handled and must not reach the
// listeners registered after it.
type FnOnEvent func(sender interface{}, listener interface{}, context EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

/**
 * @brief Delivers events to listeners synchronously, in registration order.
 * Safe for concurrent use; callbacks run on the goroutine that fires.
 */
type EventSystem struct {
	mutex      sync.RWMutex
	registered [MAX_EVENT_CODE + 1][]*registeredEvent
}

func NewEventSystem() *EventSystem {
	return &EventSystem{}
}

func sameCallback(a, b FnOnEvent) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listener/callback combos will not be registered again and will cause this to return false.
 * @param code The event code to listen for.
 * @param listener A listener instance. Can be nil.
 * @param onEvent The callback invoked when the event code is fired.
 * @returns true if the event is successfully registered; otherwise false.
 */
func (es *EventSystem) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	if code < 0 || code > MAX_EVENT_CODE || onEvent == nil {
		return false
	}
	es.mutex.Lock()
	defer es.mutex.Unlock()

	for _, e := range es.registered[code] {
		if e.listener == listener && sameCallback(e.callback, onEvent) {
			return false
		}
	}
	es.registered[code] = append(es.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

/**
 * Unregister from listening for when events are sent with the provided code. If no matching
 * registration is found, this function returns false.
 */
func (es *EventSystem) Unregister(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	if code < 0 || code > MAX_EVENT_CODE {
		return false
	}
	es.mutex.Lock()
	defer es.mutex.Unlock()

	events := es.registered[code]
	for i, e := range events {
		if e.listener == listener && sameCallback(e.callback, onEvent) {
			es.registered[code] = append(events[:i:i], events[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * true, the event is considered handled and is not passed on to any more listeners.
 * @returns true if handled, otherwise false.
 */
func (es *EventSystem) Fire(code SystemEventCode, sender interface{}, context EventContext) bool {
	if code < 0 || code > MAX_EVENT_CODE {
		return false
	}
	context.Code = code

	es.mutex.RLock()
	events := append([]*registeredEvent(nil), es.registered[code]...)
	es.mutex.RUnlock()

	for _, e := range events {
		if e.callback(sender, e.listener, context) {
			return true
		}
	}
	return false
}

// Shutdown drops every registration.
func (es *EventSystem) Shutdown() {
	es.mutex.Lock()
	defer es.mutex.Unlock()
	for i := range es.registered {
		es.registered[i] = nil
	}
}
