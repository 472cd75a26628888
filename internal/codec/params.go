package codec

import (
	"errors"

	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"

	"pkt.systems/hostbridge/schema"
)

// DecodeParams parses a JSON object of named parameters. A "method" field is
// ignored.
func DecodeParams(data []byte) (schema.Params, error) {
	var frame requestFrame
	if err := easyjson.Unmarshal(data, &frame); err != nil {
		return nil, &DecodeError{Reason: schema.ErrInvalidJSON, Detail: err}
	}
	if frame.notObject {
		return nil, &DecodeError{Reason: schema.ErrInvalidJSON, Detail: errors.New("top level is not an object")}
	}
	if frame.params == nil {
		frame.params = schema.Params{}
	}
	return frame.params, nil
}

// ParseValue reads a single parameter value. JSON literals keep their type;
// anything else is taken as a plain string.
func ParseValue(raw string) any {
	in := jlexer.Lexer{Data: []byte(raw)}
	value := in.Interface()
	in.Consumed()
	if in.Error() != nil {
		return raw
	}
	return value
}
