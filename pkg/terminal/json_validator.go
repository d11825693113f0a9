package terminal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/antibyte/retrocalc/pkg/shared"
)

// JSONValidator rejects oversized or oddly shaped frames before they are
// decoded into a shared.Message.
type JSONValidator struct {
	MaxDepth     int
	MaxKeys      int
	MaxStringLen int
}

const (
	MaxJSONDepth     = 2    // a message object plus the history map
	MaxJSONKeys      = 32   // per object
	MaxJSONStringLen = 4096 // per string value
)

var (
	ErrJSONTooDeep       = errors.New("JSON nesting too deep")
	ErrJSONTooManyKeys   = errors.New("too many keys in JSON object")
	ErrJSONStringTooLong = errors.New("JSON string too long")
	ErrJSONNotObject     = errors.New("JSON message must be an object")
)

// NewJSONValidator returns a validator with the default limits
func NewJSONValidator() *JSONValidator {
	return &JSONValidator{
		MaxDepth:     MaxJSONDepth,
		MaxKeys:      MaxJSONKeys,
		MaxStringLen: MaxJSONStringLen,
	}
}

// Decode validates data and decodes it into a message. Unknown fields are
// rejected.
func (v *JSONValidator) Decode(data []byte) (shared.Message, error) {
	var msg shared.Message

	var obj interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return msg, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, ok := obj.(map[string]interface{}); !ok {
		return msg, ErrJSONNotObject
	}
	if err := v.validateStructure(obj, 0); err != nil {
		return msg, err
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&msg); err != nil {
		return msg, fmt.Errorf("invalid message: %w", err)
	}
	return msg, nil
}

// validateStructure walks the decoded value recursively
func (v *JSONValidator) validateStructure(obj interface{}, depth int) error {
	if depth > v.MaxDepth {
		return ErrJSONTooDeep
	}

	switch val := obj.(type) {
	case map[string]interface{}:
		if len(val) > v.MaxKeys {
			return ErrJSONTooManyKeys
		}
		for key, child := range val {
			if len(key) > v.MaxStringLen {
				return ErrJSONStringTooLong
			}
			if err := v.validateStructure(child, depth+1); err != nil {
				return err
			}
		}
	case []interface{}:
		if len(val) > v.MaxKeys {
			return ErrJSONTooManyKeys
		}
		for _, child := range val {
			if err := v.validateStructure(child, depth+1); err != nil {
				return err
			}
		}
	case string:
		if len(val) > v.MaxStringLen {
			return ErrJSONStringTooLong
		}
	}
	return nil
}
