package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"
	"github.com/mcpguard/mcpguard/mcp"
)

// ToolHandler is the function signature used to handle a tool invocation.
type ToolHandler func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error)

// StaticTool pairs a tool descriptor with its handler.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// ToolSet is a fixed collection of tools keyed by name. Populated once via
// NewToolSet and read-only thereafter.
type ToolSet struct {
	byName map[string]StaticTool
	names  []string
}

// NewToolSet builds a ToolSet from the given tools. A duplicate tool name
// panics: the registry is assembled once at startup and a collision there
// is a programming error.
func NewToolSet(tools ...StaticTool) *ToolSet {
	ts := &ToolSet{byName: make(map[string]StaticTool, len(tools))}
	for _, t := range tools {
		if _, exists := ts.byName[t.Descriptor.Name]; exists {
			panic(fmt.Sprintf("service: duplicate tool %q", t.Descriptor.Name))
		}
		ts.byName[t.Descriptor.Name] = t
		ts.names = append(ts.names, t.Descriptor.Name)
	}
	sort.Strings(ts.names)
	return ts
}

// Lookup returns the tool registered under name.
func (ts *ToolSet) Lookup(name string) (StaticTool, bool) {
	t, ok := ts.byName[name]
	return t, ok
}

// Descriptors returns the tool descriptors in name order.
func (ts *ToolSet) Descriptors() []mcp.Tool {
	descs := make([]mcp.Tool, 0, len(ts.names))
	for _, name := range ts.names {
		descs = append(descs, ts.byName[name].Descriptor)
	}
	return descs
}

// ToolOption configures NewTool behavior.
type ToolOption func(*toolConfig)

type toolConfig struct {
	title                     string
	description               string
	annotations               *mcp.ToolAnnotations
	allowAdditionalProperties bool
}

// WithToolTitle sets the human-readable tool title.
func WithToolTitle(title string) ToolOption {
	return func(c *toolConfig) { c.title = title }
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolAnnotations sets behavioral hint annotations on the descriptor.
func WithToolAnnotations(a mcp.ToolAnnotations) ToolOption {
	return func(c *toolConfig) { c.annotations = &a }
}

// WithAllowAdditionalProperties relaxes the default strict argument
// decoding so unknown fields are ignored instead of rejected.
func WithAllowAdditionalProperties() ToolOption {
	return func(c *toolConfig) { c.allowAdditionalProperties = true }
}

// NewTool builds a StaticTool with a typed argument struct A. The input
// schema is reflected from A, and arguments are decoded strictly
// (unknown fields rejected) unless WithAllowAdditionalProperties is set.
func NewTool[A any](name string, fn func(ctx context.Context, args A) (*mcp.CallToolResult, error), opts ...ToolOption) StaticTool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	desc := mcp.Tool{
		Name:        name,
		Title:       cfg.title,
		Description: cfg.description,
		InputSchema: reflectInputSchema[A](cfg.allowAdditionalProperties),
		Annotations: cfg.annotations,
	}

	handler := func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var a A
		if len(req.Arguments) > 0 {
			if cfg.allowAdditionalProperties {
				if err := json.Unmarshal(req.Arguments, &a); err != nil {
					return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
				}
			} else {
				dec := json.NewDecoder(bytes.NewReader(req.Arguments))
				dec.DisallowUnknownFields()
				if err := dec.Decode(&a); err != nil {
					return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
				}
			}
		}
		return fn(ctx, a)
	}

	return StaticTool{Descriptor: desc, Handler: handler}
}

// TextResult builds a successful text-only tool result.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{mcp.TextContent(text)}}
}

// ErrorResult builds a tool-level error result.
func ErrorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{mcp.TextContent(text)}, IsError: true}
}

// reflectInputSchema reflects a Go type A into an mcp.ToolInputSchema by
// reflecting a JSON Schema with invopop/jsonschema and down-converting it
// to the simplified tool schema shape.
func reflectInputSchema[A any](allowAdditional bool) mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference:            true, // inline defs
		ExpandedStruct:            true, // put struct at root
		AllowAdditionalProperties: allowAdditional,
	}
	s := r.Reflect(new(A))

	// Only object schemas map cleanly to the tool input shape; anything else
	// degrades to an empty object.
	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{
			Type:                 "object",
			Properties:           map[string]mcp.SchemaProperty{},
			AdditionalProperties: allowAdditional,
		}
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toSchemaProperty(el.Value)
		}
	}
	var required []string
	if len(s.Required) > 0 {
		required = append(required, s.Required...)
	}

	return mcp.ToolInputSchema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: allowAdditional,
	}
}

func toSchemaProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
		Enum:        s.Enum,
	}
	if s.Items != nil {
		item := toSchemaProperty(s.Items)
		p.Items = &item
	}
	if s.Properties != nil && s.Properties.Len() > 0 {
		p.Properties = make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			p.Properties[el.Key] = toSchemaProperty(el.Value)
		}
	}
	return p
}
