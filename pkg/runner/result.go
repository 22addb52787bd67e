package runner

import "github.com/andrej220/ansirun/pkg/engine"

// Result is the payload a module reported for the target host.
type Result map[string]any

// Stdout returns the stdout field, or "" when it is absent or not a string.
func (r Result) Stdout() string {
	s, _ := r["stdout"].(string)
	return s
}

// hostResults collects the non-empty payloads reported for host.
func hostResults(out *engine.Outcome, host string) []Result {
	var results []Result
	for _, ev := range out.HostEvents(host) {
		if len(ev.EventData.Res) == 0 {
			continue
		}
		results = append(results, Result(ev.EventData.Res))
	}
	return results
}
