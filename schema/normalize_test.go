package schema

import "testing"

func TestNormalizeRequestRewritesLegacyParams(t *testing.T) {
	req := NormalizeRequest(CommandRequest{
		Method: " create_object ",
		Params: Params{
			"param_name": "Cube",
			"param_pos":  map[string]any{"x": 1.0, "y": 2.0, "z": 3.0},
		},
	})
	if req.Method != "create_object" {
		t.Fatalf("expected trimmed method, got %q", req.Method)
	}
	if name, _ := req.Params.String("name"); name != "Cube" {
		t.Fatalf("expected name from param_name, got %q", name)
	}
	if _, ok := req.Params["param_name"]; ok {
		t.Fatalf("expected legacy key removed")
	}
	pos, ok, err := req.Params.Vector("position")
	if err != nil || !ok {
		t.Fatalf("expected position, ok=%v err=%v", ok, err)
	}
	if pos != (Vector3{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("unexpected position %v", pos)
	}
}

func TestNormalizeRequestPrefersCurrentNames(t *testing.T) {
	req := NormalizeRequest(CommandRequest{
		Method: "create_object",
		Params: Params{"name": "New", "param_name": "Old"},
	})
	if name, _ := req.Params.String("name"); name != "New" {
		t.Fatalf("expected current name to win, got %q", name)
	}
}

func TestNormalizeRequestSkipsEmptyLegacyName(t *testing.T) {
	req := NormalizeRequest(CommandRequest{Method: "get_hierarchy", Params: Params{"param_name": ""}})
	if req.Params.Has("name") {
		t.Fatalf("did not expect empty legacy name to be promoted")
	}
}

func TestParamsVectorAcceptsArraysAndPartialObjects(t *testing.T) {
	p := Params{
		"a": []any{1.0, "2", 3.5},
		"b": map[string]any{"y": 4.0},
		"c": []any{1.0},
		"d": "up",
	}
	if v, _, err := p.Vector("a"); err != nil || v != (Vector3{X: 1, Y: 2, Z: 3.5}) {
		t.Fatalf("array vector: %v %v", v, err)
	}
	if v, _, err := p.Vector("b"); err != nil || v != (Vector3{Y: 4}) {
		t.Fatalf("partial vector: %v %v", v, err)
	}
	if _, _, err := p.Vector("c"); err == nil {
		t.Fatalf("expected component count error")
	}
	if _, _, err := p.Vector("d"); err == nil {
		t.Fatalf("expected type error")
	}
	if _, ok, err := p.Vector("missing"); ok || err != nil {
		t.Fatalf("expected absent vector, ok=%v err=%v", ok, err)
	}
}

func TestCommandResultEnvelopeInvariant(t *testing.T) {
	ok := Ok("done").Envelope()
	if !ok.Valid() || ok.Status != StatusSuccess || *ok.Result != "done" || ok.Message != nil {
		t.Fatalf("unexpected success envelope %+v", ok)
	}
	failed := Fail("boom").Envelope()
	if !failed.Valid() || failed.Status != StatusError || *failed.Message != "boom" || failed.Result != nil {
		t.Fatalf("unexpected error envelope %+v", failed)
	}
	empty := Ok("").Envelope()
	if !empty.Valid() || empty.Result == nil {
		t.Fatalf("expected empty result to still be present")
	}
	if (ResponseEnvelope{Status: StatusSuccess}).Valid() {
		t.Fatalf("expected success without result to be invalid")
	}
}
