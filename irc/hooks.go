package irc

import (
	"fmt"
	"log"
	"reflect"
	"runtime"
	"sync"
)

// EventKind identifies a point in a session's lifecycle
type EventKind int

const (
	EventConnect EventKind = iota
	EventCommand
	EventDisconnect
)

// Event is passed to hooks
type Event struct {
	Kind    EventKind
	Session *Session
	Command Command // EventCommand only
	Line    string  // EventCommand only
	Reason  string  // EventDisconnect only
}

// Hook observes session events. A returned error is logged and otherwise
// ignored; hooks cannot affect the session that raised the event.
type Hook func(ev *Event) error

type hookInfo struct {
	name string
	hook Hook
}

type hookRegistry struct {
	mu    sync.RWMutex
	hooks map[EventKind][]hookInfo
}

func newHookRegistry() *hookRegistry {
	return &hookRegistry{hooks: make(map[EventKind][]hookInfo)}
}

func (r *hookRegistry) register(kind EventKind, hook Hook) {
	name := runtime.FuncForPC(reflect.ValueOf(hook).Pointer()).Name()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[kind] = append(r.hooks[kind], hookInfo{name: name, hook: hook})
}

// run executes the hooks for ev.Kind in registration order and returns
// the failures keyed by hook name
func (r *hookRegistry) run(ev *Event) map[string]error {
	r.mu.RLock()
	hooks := make([]hookInfo, len(r.hooks[ev.Kind]))
	copy(hooks, r.hooks[ev.Kind])
	r.mu.RUnlock()

	var hookErrors map[string]error
	for _, info := range hooks {
		if err := callHook(info, ev); err != nil {
			if hookErrors == nil {
				hookErrors = make(map[string]error)
			}
			hookErrors[info.name] = err
			log.Printf("ERROR in hook %s: %v", info.name, err)
		}
	}
	return hookErrors
}

func callHook(info hookInfo, ev *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in hook %s: %v", info.name, r)
		}
	}()
	return info.hook(ev)
}
