package domain

import (
	"context"
	"encoding/json"
)

// CapabilityDescriptor is the local typed representation of one invocable
// tool, native or bridged. Descriptors are immutable for the lifetime of the
// owning process; a stale descriptor set requires an agent restart.
type CapabilityDescriptor struct {
	Name        string          `json:"name"`
	Owner       string          `json:"owner"` // capability server name, or "native"
	Description string          `json:"description"`
	// Schema is the JSON Schema for the tool's arguments. Required fields
	// without values and without schema defaults fail validation before any
	// remote call is made.
	Schema json.RawMessage `json:"schema,omitempty"`
}

// ResourceTemplate is a templated resource URI advertised by a capability
// server, e.g. weather://{location}/forecast/{days}.
type ResourceTemplate struct {
	URITemplate string `json:"uri_template"`
	Name        string `json:"name"`
	MIMEType    string `json:"mime_type,omitempty"`
}

// ServerBinding is the cached result of discovering one capability server:
// base address plus everything it advertised. Discovered once per agent
// startup and read-only afterwards.
type ServerBinding struct {
	Name      string                 `json:"name"`
	BaseURL   string                 `json:"base_url"`
	Tools     []CapabilityDescriptor `json:"tools"`
	Resources []ResourceTemplate     `json:"resources,omitempty"`
}

// CapabilityResult is a normalized capability response: the canonical field
// set after unwrapping whatever envelope the server used, with documented
// defaults filled in for missing expected fields. Raw preserves the payload
// as received for diagnostics.
type CapabilityResult struct {
	Fields map[string]any  `json:"fields"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

// Text returns the canonical "text" field when the result is textual.
func (r *CapabilityResult) Text() string {
	if r == nil {
		return ""
	}
	if s, ok := r.Fields["text"].(string); ok {
		return s
	}
	return ""
}

// CapabilityInvoker resolves and invokes capabilities by name. Invocation is
// a pure function of (descriptor, arguments); there is no hidden global
// table.
type CapabilityInvoker interface {
	// Capabilities returns the immutable descriptor set, in discovery order.
	Capabilities() []CapabilityDescriptor
	// Invoke validates args against the named capability's schema, performs
	// the call and normalizes the response.
	Invoke(ctx context.Context, name string, args map[string]any) (*CapabilityResult, error)
}
