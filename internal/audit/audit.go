// Package audit contains formatting helpers for audit events.
package audit

import (
	"fmt"
	"sort"
	"strings"
)

// FormatEvent renders an event as `name key=value ...` with keys sorted, so
// the same event always produces the same line.
func FormatEvent(event string, details map[string]interface{}) string {
	if len(details) == 0 {
		return event
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(event)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, details[k])
	}
	return b.String()
}

// CheckEvent rejects event names that would not survive a round trip through
// a log line.
func CheckEvent(event string) error {
	if event == "" {
		return fmt.Errorf("audit: empty event name")
	}
	if strings.ContainsAny(event, " \t\n=") {
		return fmt.Errorf("audit: invalid event name %q", event)
	}
	return nil
}
