// Package codec converts between wire frames and bridge commands.
//
// Requests are flattened JSON objects: {"method": "...", "<param>": <value>, ...}.
// Responses are {"status":"success","result":"..."} or
// {"status":"error","message":"..."}. All strings pass through a JSON writer, so
// handler output containing quotes, newlines, or control bytes stays valid.
package codec

import (
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"

	"pkt.systems/hostbridge/schema"
)

// Encode renders a result as a response envelope.
func Encode(result schema.CommandResult) []byte {
	data, err := easyjson.Marshal(envelopeFrame(result.Envelope()))
	if err != nil {
		// jwriter only fails on raw fragments, which envelopes never contain.
		data, _ = easyjson.Marshal(envelopeFrame(schema.Fail("internal encoding error").Envelope()))
	}
	return data
}

// EncodeError renders err as an error envelope.
func EncodeError(err error) []byte {
	return Encode(schema.FailErr(err))
}

// DecodeEnvelope parses a response envelope and checks the status invariant.
func DecodeEnvelope(data []byte) (schema.ResponseEnvelope, error) {
	var frame envelopeFrame
	if err := easyjson.Unmarshal(data, &frame); err != nil {
		return schema.ResponseEnvelope{}, &DecodeError{Reason: schema.ErrInvalidJSON, Detail: err}
	}
	env := schema.ResponseEnvelope(frame)
	if !env.Valid() {
		return schema.ResponseEnvelope{}, schema.ErrInvalidEnvelope
	}
	return env, nil
}

// DecodeResult parses a response envelope into a result.
func DecodeResult(data []byte) (schema.CommandResult, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return schema.CommandResult{}, err
	}
	return env.CommandResult()
}

type envelopeFrame schema.ResponseEnvelope

func (f envelopeFrame) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawString(`{"status":`)
	out.String(f.Status)
	if f.Result != nil {
		out.RawString(`,"result":`)
		out.String(*f.Result)
	}
	if f.Message != nil {
		out.RawString(`,"message":`)
		out.String(*f.Message)
	}
	out.RawByte('}')
}

func (f *envelopeFrame) UnmarshalEasyJSON(in *jlexer.Lexer) {
	if in.IsNull() {
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "status":
			f.Status = in.String()
		case "result":
			v := in.String()
			f.Result = &v
		case "message":
			v := in.String()
			f.Message = &v
		default:
			in.SkipRecursive()
		}
		in.WantComma()
		if !in.Ok() {
			return
		}
	}
	in.Delim('}')
	in.Consumed()
}
