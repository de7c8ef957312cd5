package gateway

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type frameSchemaRegistry struct {
	once     sync.Once
	initErr  error
	envelope *jsonschema.Schema
	frames   map[string]*jsonschema.Schema
}

var frameSchemas frameSchemaRegistry

func initFrameSchemas() error {
	frameSchemas.once.Do(func() {
		envelope, err := jsonschema.CompileString("c2s_envelope", c2sEnvelopeSchema)
		if err != nil {
			frameSchemas.initErr = err
			return
		}
		frameSchemas.envelope = envelope

		sources := map[string]string{
			frameC2SPing:       c2sPingSchema,
			frameC2SMessage:    c2sMessageSchema,
			frameC2SClick:      c2sClickSchema,
			frameC2SFormSubmit: c2sFormSubmitSchema,
			frameC2SDrag:       c2sDragSchema,
			frameC2SAbort:      c2sAbortSchema,
		}
		frameSchemas.frames = make(map[string]*jsonschema.Schema, len(sources))
		for name, source := range sources {
			compiled, err := jsonschema.CompileString("c2s_"+name, source)
			if err != nil {
				frameSchemas.initErr = err
				return
			}
			frameSchemas.frames[name] = compiled
		}
	})
	return frameSchemas.initErr
}

// validateC2SFrame checks a raw client frame against the envelope schema
// and the per-type schema.
func validateC2SFrame(raw []byte, frame *c2sFrame) error {
	if err := initFrameSchemas(); err != nil {
		return err
	}
	if frame == nil {
		return fmt.Errorf("missing frame")
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if err := frameSchemas.envelope.Validate(payload); err != nil {
		return err
	}
	schema, ok := frameSchemas.frames[frame.Type]
	if !ok {
		return fmt.Errorf("unknown frame type %q", frame.Type)
	}
	return schema.Validate(payload)
}

const c2sEnvelopeSchema = `{
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": true
}`

const c2sPingSchema = `{
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": { "const": "c2s:ping" }
  },
  "additionalProperties": false
}`

const c2sMessageSchema = `{
  "type": "object",
  "required": ["type", "text"],
  "properties": {
    "type": { "const": "c2s:message" },
    "text": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": false
}`

const c2sClickSchema = `{
  "type": "object",
  "required": ["type", "node_id"],
  "properties": {
    "type": { "const": "c2s:click" },
    "node_id": { "type": "string", "minLength": 1 },
    "action": { "type": "string" }
  },
  "additionalProperties": false
}`

const c2sFormSubmitSchema = `{
  "type": "object",
  "required": ["type", "node_id", "fields"],
  "properties": {
    "type": { "const": "c2s:form_submit" },
    "node_id": { "type": "string", "minLength": 1 },
    "fields": {
      "type": "object",
      "additionalProperties": { "type": "string" }
    }
  },
  "additionalProperties": false
}`

const c2sDragSchema = `{
  "type": "object",
  "required": ["type", "node_id", "x", "y"],
  "properties": {
    "type": { "const": "c2s:drag" },
    "node_id": { "type": "string", "minLength": 1 },
    "x": { "type": "number" },
    "y": { "type": "number" }
  },
  "additionalProperties": false
}`

const c2sAbortSchema = `{
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": { "const": "c2s:abort" }
  },
  "additionalProperties": false
}`
