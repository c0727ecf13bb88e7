package transport

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/platinummonkey/ppac/pkg/analytics"
)

// Body encodings
const (
	EncodingJSON     = "json"
	EncodingProtobuf = "protobuf"
)

// Content types sent with each encoding
const (
	ContentTypeJSON     = "application/json"
	ContentTypeProtobuf = "application/x-protobuf"
)

// encodePayload serializes the payload for the wire and returns the content type
func encodePayload(payload *analytics.Payload, encoding string) ([]byte, string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	switch encoding {
	case "", EncodingJSON:
		return data, ContentTypeJSON, nil
	case EncodingProtobuf:
		// The protobuf body is a google.protobuf.Struct with the same fields as the JSON body
		var fields map[string]interface{}
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, "", fmt.Errorf("failed to convert payload: %w", err)
		}
		msg, err := structpb.NewStruct(fields)
		if err != nil {
			return nil, "", fmt.Errorf("failed to convert payload: %w", err)
		}
		encoded, err := proto.Marshal(msg)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal protobuf payload: %w", err)
		}
		return encoded, ContentTypeProtobuf, nil
	}
	return nil, "", fmt.Errorf("unsupported encoding %q", encoding)
}
