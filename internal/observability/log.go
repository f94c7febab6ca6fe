// Package observability provides the structured-logging and tracing
// conventions the scheduler, reconciler, and worker pool use to report
// their activity.
package observability

import (
	"fmt"
	"log"
	"sort"
)

// Info logs a structured event with an attached field map. Fields are
// rendered in sorted key order so log lines are diffable across runs.
func Info(event string, fields map[string]interface{}) {
	log.Printf("[INFO] %s %s", event, formatFields(fields))
}

// Error logs a structured event alongside the error that triggered it.
func Error(event string, fields map[string]interface{}, err error) {
	log.Printf("[ERROR] %s %s error=%q", event, formatFields(fields), err)
}

// Warn logs a structured event at warning level, used for conditions worth
// flagging (an orphaned bead, a dropped cast) that are not themselves
// errors.
func Warn(event string, fields map[string]interface{}) {
	log.Printf("[WARN] %s %s", event, formatFields(fields))
}

func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%v", k, fields[k])
	}
	return out
}
