// Package engine describes the external execution engine the runner delegates to,
// and provides an implementation backed by the ansible-runner CLI.
package engine

import (
	"context"
	"sort"
)

// Engine runs one ad-hoc module invocation and reports its outcome.
// An error means the engine could not run at all; a failed module is a
// non-zero Outcome.RC.
type Engine interface {
	Run(ctx context.Context, inv Invocation) (*Outcome, error)
}

// Invocation is the engine-level description of one run.
type Invocation struct {
	Ident       string
	Module      string
	Args        string
	Inventory   string // empty means the engine default (implicit localhost)
	HostPattern string
	Limit       string
	Forks       int
	Quiet       bool
	Cmdline     string
	Env         map[string]string
}

// Event is a single job event emitted by the engine.
type Event struct {
	UUID      string    `json:"uuid"`
	Counter   int       `json:"counter"`
	Event     string    `json:"event"`
	Stdout    string    `json:"stdout,omitempty"`
	EventData EventData `json:"event_data"`
}

// EventData carries the host, the task name and the module result of an event.
type EventData struct {
	Host string         `json:"host,omitempty"`
	Task string         `json:"task,omitempty"`
	Res  map[string]any `json:"res,omitempty"`
}

// Outcome is the result of a run: the return code, the final status and the event stream.
type Outcome struct {
	RC     int
	Status string
	Events []Event
}

// HostEvents returns the events reported for host, ordered by counter.
func (o *Outcome) HostEvents(host string) []Event {
	if o == nil {
		return nil
	}
	var events []Event
	for _, ev := range o.Events {
		if ev.EventData.Host == host {
			events = append(events, ev)
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Counter < events[j].Counter })
	return events
}
