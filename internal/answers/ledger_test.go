package answers

import (
	"reflect"
	"testing"
)

func TestRecordAnswerIgnoresBlank(t *testing.T) {
	l := NewLedger()
	for _, text := range []string{"", "  ", "\n\t"} {
		if l.RecordAnswer(2, text) {
			t.Errorf("RecordAnswer(2, %q) = true", text)
		}
	}
	if _, ok := l.Answer(2); ok {
		t.Error("blank answer was stored")
	}
}

func TestRecordAnswerOverwrites(t *testing.T) {
	l := NewLedger()
	l.RecordAnswer(2, "My answer")
	l.RecordAnswer(2, "Updated")

	got, ok := l.Answer(2)
	if !ok || got != "Updated" {
		t.Errorf("Answer(2) = %q, %v; want Updated", got, ok)
	}

	l.RecordAnswer(2, "  ")
	if got, _ := l.Answer(2); got != "Updated" {
		t.Errorf("blank overwrote answer: %q", got)
	}
}

func TestAllIsOrderedByIndex(t *testing.T) {
	l := NewLedger()
	l.RecordAnswer(3, "c")
	l.RecordAnswer(0, "a")
	l.RecordAnswer(1, "b")

	want := []Entry{{0, "a"}, {1, "b"}, {3, "c"}}
	if got := l.All(); !reflect.DeepEqual(got, want) {
		t.Errorf("All() = %v, want %v", got, want)
	}
	if l.Len() != 3 {
		t.Errorf("Len() = %d", l.Len())
	}
}
