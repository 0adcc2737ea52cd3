package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
)

const (
	userPayloadSchema = `{
		"type": "object",
		"required": ["userId"],
		"properties": {"userId": {"type": "string", "minLength": 1}}
	}`
	accountPayloadSchema = `{
		"type": "object",
		"required": ["userId", "provider", "externalId"],
		"properties": {
			"userId": {"type": "string", "minLength": 1},
			"provider": {"type": "string", "minLength": 1},
			"externalId": {"type": "string", "minLength": 1}
		}
	}`
	roleChangedPayloadSchema = `{
		"type": "object",
		"required": ["userId", "role"],
		"properties": {
			"userId": {"type": "string", "minLength": 1},
			"role": {"enum": ["ADMIN", "MANAGER", "WORKER"]},
			"previousRole": {"enum": ["", "ADMIN", "MANAGER", "WORKER"]}
		}
	}`
	projectPayloadSchema = `{
		"type": "object",
		"required": ["projectId"],
		"properties": {"projectId": {"type": "string", "minLength": 1}, "name": {"type": "string"}}
	}`
	projectMemberPayloadSchema = `{
		"type": "object",
		"required": ["projectId", "userId"],
		"properties": {
			"projectId": {"type": "string", "minLength": 1},
			"userId": {"type": "string", "minLength": 1}
		}
	}`
	taskPayloadSchema = `{
		"type": "object",
		"required": ["taskId", "projectId"],
		"properties": {
			"taskId": {"type": "string", "minLength": 1},
			"projectId": {"type": "string", "minLength": 1},
			"title": {"type": "string"},
			"status": {"enum": ["TODO", "IN_PROGRESS", "DONE"]}
		}
	}`
)

var payloadSchemas = map[domain.EventType]string{
	domain.EventAccountLinked:        accountPayloadSchema,
	domain.EventAccountUnlinked:      accountPayloadSchema,
	domain.EventAccountDeactivated:   userPayloadSchema,
	domain.EventRoleChanged:          roleChangedPayloadSchema,
	domain.EventProjectCreated:       projectPayloadSchema,
	domain.EventProjectUpdated:       projectPayloadSchema,
	domain.EventProjectDeleted:       projectPayloadSchema,
	domain.EventProjectMemberAdded:   projectMemberPayloadSchema,
	domain.EventProjectMemberRemoved: projectMemberPayloadSchema,
	domain.EventTaskCreated:          taskPayloadSchema,
	domain.EventTaskUpdated:          taskPayloadSchema,
	domain.EventTaskDeleted:          taskPayloadSchema,
	domain.EventPresenceOnline:       userPayloadSchema,
	domain.EventPresenceOffline:      userPayloadSchema,
}

// EventCodec is the wire codec for domain events. Known event types have their
// payload checked against a JSON schema; unknown types only need a valid envelope.
type EventCodec struct {
	schemas map[domain.EventType]*santhosh.Schema
}

func NewEventCodec() (*EventCodec, error) {
	schemas := make(map[domain.EventType]*santhosh.Schema, len(payloadSchemas))
	for t, raw := range payloadSchemas {
		compiled, err := compileSchema(strings.ReplaceAll(string(t), ":", "_")+".json", raw)
		if err != nil {
			return nil, fmt.Errorf("compile %s payload schema: %w", t, err)
		}
		schemas[t] = compiled
	}
	return &EventCodec{schemas: schemas}, nil
}

func MustEventCodec() *EventCodec {
	c, err := NewEventCodec()
	if err != nil {
		panic(err)
	}
	return c
}

func (c *EventCodec) Validate(e domain.DomainEvent) error {
	if e.TenantID == "" {
		return domain.ErrTenantIDRequired
	}
	if err := domain.ValidateID(e.TenantID); err != nil {
		return err
	}
	if strings.TrimSpace(e.ID) == "" {
		return domain.NewError(domain.CodeValidationFailed, "event id is required")
	}
	if e.Type.Namespace() == "" {
		return domain.NewError(domain.CodeValidationFailed, "event type must be namespace:name")
	}
	if e.OccurredAt.IsZero() {
		return domain.NewError(domain.CodeValidationFailed, "event time is required")
	}
	if len(e.Payload) == 0 || !json.Valid(e.Payload) {
		return domain.NewError(domain.CodeValidationFailed, "event payload must be valid json")
	}

	sch, ok := c.schemas[e.Type]
	if !ok {
		return nil
	}
	var v any
	if err := json.Unmarshal(e.Payload, &v); err != nil {
		return domain.WrapError(domain.CodeValidationFailed, "decode event payload", err)
	}
	if err := sch.Validate(v); err != nil {
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			return domain.NewError(domain.CodeValidationFailed,
				fmt.Sprintf("%s payload: %s", e.Type, strings.Join(collectValidationErrors(ve), "; ")))
		}
		return domain.WrapError(domain.CodeValidationFailed, string(e.Type)+" payload", err)
	}
	return nil
}

func (c *EventCodec) Encode(e domain.DomainEvent) ([]byte, error) {
	if err := c.Validate(e); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

func (c *EventCodec) Decode(data []byte) (domain.DomainEvent, error) {
	var e domain.DomainEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return domain.DomainEvent{}, domain.WrapError(domain.CodeValidationFailed, "decode event", err)
	}
	if err := c.Validate(e); err != nil {
		return domain.DomainEvent{}, err
	}
	return e, nil
}

// Known reports whether consumers are expected to understand t.
func (c *EventCodec) Known(t domain.EventType) bool {
	_, ok := c.schemas[t]
	return ok
}

func compileSchema(name, schemaJSON string) (*santhosh.Schema, error) {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	if err := compiler.AddResource(name, bytes.NewReader([]byte(schemaJSON))); err != nil {
		return nil, err
	}
	return compiler.Compile(name)
}

// collectValidationErrors flattens the leaf causes of a validation error.
func collectValidationErrors(ve *santhosh.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{loc + ": " + ve.Message}
	}
	var out []string
	for _, cause := range ve.Causes {
		out = append(out, collectValidationErrors(cause)...)
	}
	return out
}
