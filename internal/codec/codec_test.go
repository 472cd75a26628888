package codec

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"pkt.systems/hostbridge/schema"
)

func TestEncodeSuccessEnvelope(t *testing.T) {
	require.JSONEq(t, `{"status":"success","result":""}`, string(Encode(schema.Ok(""))))
	require.JSONEq(t, `{"status":"success","result":"Created 'Cube'"}`, string(Encode(schema.Ok("Created 'Cube'"))))
}

func TestEncodeErrorEnvelope(t *testing.T) {
	data := Encode(schema.Fail("Object 'Missing' not found."))
	require.JSONEq(t, `{"status":"error","message":"Object 'Missing' not found."}`, string(data))
	require.JSONEq(t, `{"status":"error","message":"Invalid JSON"}`, string(EncodeError(schema.ErrInvalidJSON)))
}

func TestEncodeEscapesHostileOutput(t *testing.T) {
	hostile := "line \"one\"\nline\ttwo\\ \x01 \xff end"
	data := Encode(schema.Ok(hostile))
	require.True(t, json.Valid(data), "invalid json: %s", data)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "success", decoded["status"])
	require.Contains(t, decoded["result"], "line \"one\"\nline\ttwo\\")
}

func TestResultRoundTrip(t *testing.T) {
	cases := []schema.CommandResult{
		schema.Ok(""),
		schema.Ok("plain"),
		schema.Ok("with \"quotes\" and\nnewlines\r\n"),
		schema.Ok("- Root\n  - Child \"A\"\n"),
		schema.Fail("bad \"param\"\nvalue"),
		schema.Fail("</script>&<>"),
	}
	for _, want := range cases {
		got, err := DecodeResult(Encode(want))
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestDecodeRequestFlattenedParams(t *testing.T) {
	req, err := Decode([]byte(`{"method":"create_object","name":"Cube","position":{"x":1,"y":2.5,"z":-3},"tags":["a"],"visible":true}`))
	require.NoError(t, err)
	require.Equal(t, schema.Method("create_object"), req.Method)
	name, ok := req.Params.String("name")
	require.True(t, ok)
	require.Equal(t, "Cube", name)
	pos, ok, err := req.Params.Vector("position")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, schema.Vector3{X: 1, Y: 2.5, Z: -3}, pos)
	require.Equal(t, []any{"a"}, req.Params["tags"])
	require.Equal(t, true, req.Params["visible"])
	require.NotContains(t, req.Params, "method")
}

func TestDecodeRequestLegacyFields(t *testing.T) {
	req, err := Decode([]byte(`{"method":"CreateObject","param_name":"Cube","param_pos":{"x":0,"y":1,"z":0}}`))
	require.NoError(t, err)
	require.Equal(t, schema.Method("CreateObject"), req.Method)
	name, _ := req.Params.String("name")
	require.Equal(t, "Cube", name)
	require.True(t, req.Params.Has("position"))
}

func TestDecodeRejectsInvalidJSON(t *testing.T) {
	for _, frame := range []string{"", "hello", "{", `{"method":"x",}`, `{"method":"x"} trailing`, `[1,2]`, `"method"`, `42`} {
		_, err := Decode([]byte(frame))
		require.ErrorIs(t, err, schema.ErrInvalidJSON, "frame %q", frame)
		require.Equal(t, "Invalid JSON", err.Error())
	}
}

func TestDecodeRejectsMissingMethod(t *testing.T) {
	for _, frame := range []string{`{}`, `{"name":"Cube"}`, `{"method":""}`, `{"method":"  "}`, `{"method":42}`, `{"method":null}`} {
		_, err := Decode([]byte(frame))
		require.ErrorIs(t, err, schema.ErrMissingMethod, "frame %q", frame)
	}
}

func TestDecodeErrorKeepsDetail(t *testing.T) {
	_, err := Decode([]byte("not json"))
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	require.Error(t, decodeErr.Detail)
}

func TestEncodeRequestRoundTrip(t *testing.T) {
	in := schema.CommandRequest{
		Method: "create_object",
		Params: schema.Params{
			"name":     "Quote \"Cube\"",
			"position": map[string]any{"x": 1.0, "y": 0.0, "z": 2.0},
			"method":   "ignored",
		},
	}
	data, err := EncodeRequest(in)
	require.NoError(t, err)
	require.True(t, json.Valid(data))

	out, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, in.Method, out.Method)
	require.Equal(t, "Quote \"Cube\"", out.Params["name"])
	require.Equal(t, map[string]any{"x": 1.0, "y": 0.0, "z": 2.0}, out.Params["position"])
}

func TestDecodeEnvelopeRejectsMixedFields(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"status":"success","result":"a","message":"b"}`))
	require.ErrorIs(t, err, schema.ErrInvalidEnvelope)
	_, err = DecodeEnvelope([]byte(`{"status":"error"}`))
	require.ErrorIs(t, err, schema.ErrInvalidEnvelope)
	_, err = DecodeEnvelope([]byte(`{"status":"maybe","result":"x"}`))
	require.ErrorIs(t, err, schema.ErrInvalidEnvelope)
}

func TestDecodeParams(t *testing.T) {
	params, err := DecodeParams([]byte(`{"method":"ignored","name":"Cube","position":[1,2,3]}`))
	require.NoError(t, err)
	require.Equal(t, schema.Params{"name": "Cube", "position": []any{1.0, 2.0, 3.0}}, params)

	params, err = DecodeParams([]byte(`{}`))
	require.NoError(t, err)
	require.Empty(t, params)

	_, err = DecodeParams([]byte(`[1]`))
	require.ErrorIs(t, err, schema.ErrInvalidJSON)
	_, err = DecodeParams([]byte(`{`))
	require.ErrorIs(t, err, schema.ErrInvalidJSON)
}

func TestParseValue(t *testing.T) {
	require.Equal(t, 1.5, ParseValue("1.5"))
	require.Equal(t, true, ParseValue("true"))
	require.Equal(t, "Cube", ParseValue(`"Cube"`))
	require.Equal(t, "Cube", ParseValue("Cube"))
	require.Equal(t, "two words", ParseValue("two words"))
	require.Equal(t, "", ParseValue(""))
	require.Equal(t, map[string]any{"x": 1.0}, ParseValue(`{"x":1}`))
}
