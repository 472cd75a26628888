package codec

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"

	"pkt.systems/hostbridge/schema"
)

const methodField = "method"

// DecodeError reports why a frame could not become a CommandRequest.
// Error returns the client-facing reason; Detail keeps the parser error for logs.
type DecodeError struct {
	Reason error
	Detail error
}

func (e *DecodeError) Error() string {
	return e.Reason.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Reason
}

// Decode parses a request frame. The top level must be a JSON object with a
// non-empty string "method"; every other field becomes a parameter.
func Decode(data []byte) (schema.CommandRequest, error) {
	var frame requestFrame
	if err := easyjson.Unmarshal(data, &frame); err != nil {
		return schema.CommandRequest{}, &DecodeError{Reason: schema.ErrInvalidJSON, Detail: err}
	}
	if frame.notObject {
		return schema.CommandRequest{}, &DecodeError{Reason: schema.ErrInvalidJSON, Detail: errors.New("top level is not an object")}
	}
	method, ok := frame.method.(string)
	if !frame.hasMethod || !ok {
		return schema.CommandRequest{}, &DecodeError{Reason: schema.ErrMissingMethod}
	}
	req := schema.NormalizeRequest(schema.CommandRequest{
		Method: schema.Method(method),
		Params: frame.params,
	})
	if req.Method == "" {
		return schema.CommandRequest{}, &DecodeError{Reason: schema.ErrMissingMethod}
	}
	return req, nil
}

// EncodeRequest renders a request in the flattened wire form. Parameters are
// written in key order; a "method" parameter is ignored.
func EncodeRequest(req schema.CommandRequest) ([]byte, error) {
	return easyjson.Marshal(requestFrame{
		hasMethod: true,
		method:    string(req.Method),
		params:    req.Params,
	})
}

type requestFrame struct {
	method    any
	hasMethod bool
	notObject bool
	params    schema.Params
}

func (f *requestFrame) UnmarshalEasyJSON(in *jlexer.Lexer) {
	if !in.IsDelim('{') {
		if in.Ok() {
			f.notObject = true
			in.SkipRecursive()
			in.Consumed()
		}
		return
	}
	f.params = schema.Params{}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.String()
		in.WantColon()
		value := in.Interface()
		if key == methodField {
			f.hasMethod = true
			f.method = value
		} else {
			f.params[key] = value
		}
		in.WantComma()
		if !in.Ok() {
			return
		}
	}
	in.Delim('}')
	in.Consumed()
}

func (f requestFrame) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawByte('{')
	out.RawString(`"method":`)
	method, _ := f.method.(string)
	out.String(method)
	keys := make([]string, 0, len(f.params))
	for key := range f.params {
		if key == methodField {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		out.RawByte(',')
		out.String(key)
		out.RawByte(':')
		writeValue(out, f.params[key])
	}
	out.RawByte('}')
}

func writeValue(out *jwriter.Writer, v any) {
	switch t := v.(type) {
	case nil:
		out.RawString("null")
	case string:
		out.String(t)
	case bool:
		out.Bool(t)
	case float64:
		out.Float64(t)
	case int:
		out.Int(t)
	case easyjson.Marshaler:
		t.MarshalEasyJSON(out)
	default:
		out.Raw(json.Marshal(t))
	}
}
