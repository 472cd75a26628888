package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"pkt.systems/hostbridge/schema"
)

type sceneHarness struct {
	scene   *Scene
	console *LogBuffer
	exec    *Executor
	d       *Dispatcher
}

func newSceneHarness(t *testing.T) *sceneHarness {
	t.Helper()
	h := &sceneHarness{
		scene:   NewScene(),
		console: NewLogBuffer(DefaultConsoleCapacity),
		d:       NewDispatcher(),
	}
	reg := NewRegistry()
	if err := RegisterSceneCommands(reg, h.scene, h.console); err != nil {
		t.Fatalf("register commands: %v", err)
	}
	h.exec = NewExecutor(reg, h.d)
	return h
}

func (h *sceneHarness) call(t *testing.T, method schema.Method, params schema.Params) schema.CommandResult {
	t.Helper()
	f := h.exec.Execute(context.Background(), schema.NormalizeRequest(schema.CommandRequest{Method: method, Params: params}))
	h.d.Tick()
	result, ok := f.Result()
	if !ok {
		t.Fatalf("%s did not resolve", method)
	}
	return result
}

func TestGetHierarchyEmptyScene(t *testing.T) {
	h := newSceneHarness(t)
	result := h.call(t, MethodGetHierarchy, nil)
	if !result.IsOk() || result.Value() != "" {
		t.Fatalf("expected empty success, got %+v", result)
	}
}

func TestDeleteMissingObject(t *testing.T) {
	h := newSceneHarness(t)
	result := h.call(t, MethodDeleteObject, schema.Params{"name": "Missing"})
	if result.IsOk() || result.Error() != "Object 'Missing' not found." {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCreateObjectAndHierarchy(t *testing.T) {
	h := newSceneHarness(t)
	result := h.call(t, MethodCreateObject, schema.Params{"name": "Root"})
	if result.Value() != "Created 'Root' at (0, 0, 0)" {
		t.Fatalf("unexpected create result %+v", result)
	}
	result = h.call(t, MethodCreateObject, schema.Params{
		"name":     "Child",
		"parent":   "Root",
		"position": map[string]any{"x": 1.0, "y": 2.5, "z": -3.0},
	})
	if result.Value() != "Created 'Child' at (1, 2.5, -3)" {
		t.Fatalf("unexpected create result %+v", result)
	}
	h.call(t, MethodCreateObject, schema.Params{"name": "Leaf", "parent": "Child"})
	h.call(t, MethodCreateObject, schema.Params{"name": "Other"})

	tree := h.call(t, MethodGetHierarchy, nil).Value()
	if tree != "Root\n  Child\n    Leaf\nOther" {
		t.Fatalf("unexpected hierarchy %q", tree)
	}

	deleted := h.call(t, MethodDeleteObject, schema.Params{"name": "Child"})
	if deleted.Value() != "Deleted 'Child'." {
		t.Fatalf("unexpected delete result %+v", deleted)
	}
	if tree := h.call(t, MethodGetHierarchy, nil).Value(); tree != "Root\nOther" {
		t.Fatalf("expected subtree removed, got %q", tree)
	}
}

func TestCreateObjectValidation(t *testing.T) {
	h := newSceneHarness(t)
	if r := h.call(t, MethodCreateObject, nil); r.Error() != "Missing required parameter 'name'" {
		t.Fatalf("unexpected result %+v", r)
	}
	if r := h.call(t, MethodCreateObject, schema.Params{"name": "A", "parent": "Nope"}); r.Error() != "Object 'Nope' not found." {
		t.Fatalf("unexpected result %+v", r)
	}
	if r := h.call(t, MethodCreateObject, schema.Params{"name": "A", "position": "up"}); r.IsOk() {
		t.Fatalf("expected invalid position to fail")
	}
	if h.scene.Len() != 0 {
		t.Fatalf("failed creates must not mutate the scene")
	}
}

func TestLegacyMethodAndParamNames(t *testing.T) {
	h := newSceneHarness(t)
	result := h.call(t, "CreateObject", schema.Params{
		"param_name": "Cube",
		"param_pos":  map[string]any{"x": 0.0, "y": 1.0, "z": 0.0},
	})
	if result.Value() != "Created 'Cube' at (0, 1, 0)" {
		t.Fatalf("unexpected legacy create result %+v", result)
	}
	if tree := h.call(t, "GetHierarchy", nil).Value(); tree != "Cube" {
		t.Fatalf("unexpected legacy hierarchy %q", tree)
	}
}

func TestReadConsole(t *testing.T) {
	h := newSceneHarness(t)
	if r := h.call(t, MethodReadConsole, nil); r.Value() != "No logs" {
		t.Fatalf("expected no logs, got %+v", r)
	}
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.Local)
	h.console.Append(schema.LogEntry{Timestamp: at, Level: schema.LogWarning, Text: "low fuel"})
	h.console.Append(schema.LogEntry{Timestamp: at.Add(time.Second), Level: schema.LogError, Text: "crashed \"hard\""})

	out := h.call(t, MethodReadConsole, nil).Value()
	want := "[07:08:09] [warning] low fuel\n[07:08:10] [error] crashed \"hard\""
	if out != want {
		t.Fatalf("unexpected console %q", out)
	}
	last := h.call(t, MethodReadConsole, schema.Params{"count": 1.0}).Value()
	if !strings.HasPrefix(last, "[07:08:10]") || strings.Contains(last, "\n") {
		t.Fatalf("expected only the newest entry, got %q", last)
	}
	if got := h.call(t, MethodReadConsole, schema.Params{"count": 0.0}).Value(); got != want {
		t.Fatalf("expected count 0 to return every entry, got %q", got)
	}
	if got := h.call(t, MethodReadConsole, schema.Params{"count": 1e19}).Value(); got != want {
		t.Fatalf("expected a count beyond the buffer to return every entry, got %q", got)
	}
	for _, count := range []float64{-1, -1e19, 1.5} {
		r := h.call(t, MethodReadConsole, schema.Params{"count": count})
		if r.IsOk() || r.Error() != "parameter 'count' must be a non-negative integer" {
			t.Fatalf("count %v: expected validation error, got %+v", count, r)
		}
	}
}

func TestListMethods(t *testing.T) {
	h := newSceneHarness(t)
	out := h.call(t, MethodListMethods, nil).Value()
	want := "create_object\ndelete_object\nget_hierarchy\nlist_methods\nread_console"
	if out != want {
		t.Fatalf("unexpected methods %q", out)
	}
}
