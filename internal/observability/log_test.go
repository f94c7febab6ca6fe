package observability

import "testing"

func TestFormatFieldsSortsKeys(t *testing.T) {
	got := formatFields(map[string]interface{}{"b": 2, "a": 1})
	want := "a=1 b=2"
	if got != want {
		t.Fatalf("formatFields: got %q, want %q", got, want)
	}
}

func TestFormatFieldsEmpty(t *testing.T) {
	if got := formatFields(nil); got != "" {
		t.Fatalf("formatFields(nil): got %q, want empty", got)
	}
}

func TestInfoErrorWarnDoNotPanic(t *testing.T) {
	Info("bead_created", map[string]interface{}{"bead_id": "a"})
	Warn("bead_orphaned", map[string]interface{}{"bead_id": "a"})
	Error("bead_failed", map[string]interface{}{"bead_id": "a"}, errTest)
}

var errTest = errTestType("boom")

type errTestType string

func (e errTestType) Error() string { return string(e) }
