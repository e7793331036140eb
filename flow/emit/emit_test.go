package emit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogEmitterText(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(&buf, false)

	e.Emit(Event{RunID: "run-001", Step: 1, NodeID: "nodeA", Kind: "agent", Msg: "step_start"})
	e.Emit(Event{RunID: "run-001", Msg: "run_end", Meta: map[string]interface{}{"cost_usd": 0.5}})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if lines[0] != "[step_start] runID=run-001 step=1 nodeID=nodeA kind=agent" {
		t.Errorf("line 1 = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "[run_end] runID=run-001 step=0 nodeID=") {
		t.Errorf("line 2 = %q", lines[1])
	}
	if !strings.Contains(lines[1], `"cost_usd":0.5`) {
		t.Errorf("meta missing from line 2: %q", lines[1])
	}
}

func TestLogEmitterJSON(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitter(&buf, true)

	e.Emit(Event{RunID: "run-1", Step: 2, NodeID: "n2", Kind: "http", Msg: "step_end",
		Meta: map[string]interface{}{"duration_ms": 12}})

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if decoded["runID"] != "run-1" || decoded["step"] != float64(2) || decoded["msg"] != "step_end" {
		t.Errorf("decoded = %#v", decoded)
	}
	meta := decoded["meta"].(map[string]interface{})
	if meta["duration_ms"] != float64(12) {
		t.Errorf("meta = %#v", meta)
	}
}

func TestBufferedEmitterHistory(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{RunID: "r1", Step: 1, NodeID: "a", Msg: "step_start"})
	b.Emit(Event{RunID: "r1", Step: 1, NodeID: "a", Msg: "step_end"})
	b.Emit(Event{RunID: "r2", Step: 1, NodeID: "x", Msg: "step_start"})

	events := b.History("r1")
	if len(events) != 2 {
		t.Fatalf("len = %d", len(events))
	}
	if events[0].Msg != "step_start" || events[1].Msg != "step_end" {
		t.Errorf("order = %v, %v", events[0].Msg, events[1].Msg)
	}
	if len(b.History("unknown")) != 0 {
		t.Error("unknown run should be empty")
	}

	// History returns a copy; mutating it must not affect the buffer.
	events[0].Msg = "mutated"
	if b.History("r1")[0].Msg != "step_start" {
		t.Error("History leaked internal state")
	}
}

func TestBufferedEmitterFilter(t *testing.T) {
	b := NewBufferedEmitter()
	for step := 1; step <= 3; step++ {
		b.Emit(Event{RunID: "r", Step: step, NodeID: "a", Msg: "step_start"})
		b.Emit(Event{RunID: "r", Step: step, NodeID: "a", Msg: "step_end"})
	}
	b.Emit(Event{RunID: "r", Step: 2, NodeID: "b", Msg: "fallback"})

	if got := b.HistoryWithFilter("r", HistoryFilter{Msg: "step_end"}); len(got) != 3 {
		t.Errorf("msg filter = %d events", len(got))
	}
	if got := b.HistoryWithFilter("r", HistoryFilter{NodeID: "b"}); len(got) != 1 {
		t.Errorf("node filter = %d events", len(got))
	}

	minStep, maxStep := 2, 2
	got := b.HistoryWithFilter("r", HistoryFilter{MinStep: &minStep, MaxStep: &maxStep})
	if len(got) != 3 {
		t.Errorf("step range filter = %d events", len(got))
	}

	got = b.HistoryWithFilter("r", HistoryFilter{NodeID: "a", Msg: "step_start", MinStep: &minStep})
	if len(got) != 2 {
		t.Errorf("combined filter = %d events", len(got))
	}
}

func TestBufferedEmitterClear(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{RunID: "r1", Msg: "run_start"})
	b.Emit(Event{RunID: "r2", Msg: "run_start"})

	b.Clear("r1")
	if len(b.History("r1")) != 0 {
		t.Error("r1 should be cleared")
	}
	if len(b.History("r2")) != 1 {
		t.Error("r2 should survive")
	}

	b.Clear("")
	if len(b.History("r2")) != 0 {
		t.Error("empty runID should clear everything")
	}
}
