package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/faasrt/core/pkg/rterrors"
)

const contentTypeAttributePrefix = "application/vnd.celastrinajs.attribute+json;"

// PropertyResolver resolves a bare property key (the text inside a
// "${...}" reference) through the Configuration's PropertyManager. A
// reference that resolves to nil is a ConfigurationError.
type PropertyResolver func(ctx context.Context, key string) (string, error)

// AttributeParser turns one "_content.type"-tagged subtree into a domain
// object. attr has already had every "${property}" string resolved.
type AttributeParser interface {
	Kind() string
	Parse(ctx context.Context, attr map[string]any) (any, error)
}

// AttributeRegistry dispatches attribute subtrees to the AttributeParser
// registered for their kind. Unknown kinds are a ConfigurationError.
type AttributeRegistry struct {
	parsers  map[string]AttributeParser
	resolver PropertyResolver
}

// NewAttributeRegistry builds a registry that resolves "${...}" property
// references through resolver before dispatching to a kind's parser.
func NewAttributeRegistry(resolver PropertyResolver) *AttributeRegistry {
	return &AttributeRegistry{parsers: make(map[string]AttributeParser), resolver: resolver}
}

// Register adds or replaces the parser for its own Kind().
func (r *AttributeRegistry) Register(p AttributeParser) {
	r.parsers[p.Kind()] = p
}

// kindOf extracts <Kind> from a "_content.type" value of the family
// "application/vnd.celastrinajs.attribute+json;<Kind>".
func kindOf(contentType string) (string, bool) {
	if !strings.HasPrefix(contentType, contentTypeAttributePrefix) {
		return "", false
	}
	return strings.TrimPrefix(contentType, contentTypeAttributePrefix), true
}

// ParseRaw decodes raw as an attribute subtree: resolves every nested
// "${property}" reference, reads its "_content.type" tag, and dispatches
// to the registered parser for that kind.
func (r *AttributeRegistry) ParseRaw(ctx context.Context, raw json.RawMessage) (any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, rterrors.NewConfigurationError("attribute subtree is not a json object", rterrors.WithCause(err))
	}
	return r.Parse(ctx, m)
}

// Parse resolves references in attr and dispatches it to its kind's
// parser.
func (r *AttributeRegistry) Parse(ctx context.Context, attr map[string]any) (any, error) {
	resolved, err := r.resolveReferences(ctx, attr)
	if err != nil {
		return nil, err
	}
	m, ok := resolved.(map[string]any)
	if !ok {
		return nil, rterrors.NewConfigurationError("attribute subtree must be a json object")
	}

	content, _ := m["_content"].(map[string]any)
	contentType, _ := content["type"].(string)
	kind, ok := kindOf(contentType)
	if !ok {
		return nil, rterrors.NewConfigurationError(
			fmt.Sprintf("attribute has an unrecognized _content.type %q", contentType))
	}

	parser, ok := r.parsers[kind]
	if !ok {
		return nil, rterrors.NewConfigurationError(fmt.Sprintf("unknown attribute kind %q", kind))
	}
	return parser.Parse(ctx, m)
}

// resolveReferences walks v recursively, replacing any string of the
// exact shape "${key}" with PropertyManager.GetProperty(key). A reference
// to a key that resolves to nil is a ConfigurationError.
func (r *AttributeRegistry) resolveReferences(ctx context.Context, v any) (any, error) {
	switch val := v.(type) {
	case string:
		key, isRef := propertyReference(val)
		if !isRef {
			return val, nil
		}
		resolved, err := r.resolver(ctx, key)
		if err != nil {
			return nil, err
		}
		return resolved, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			resolvedChild, err := r.resolveReferences(ctx, child)
			if err != nil {
				return nil, err
			}
			out[k] = resolvedChild
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			resolvedChild, err := r.resolveReferences(ctx, child)
			if err != nil {
				return nil, err
			}
			out[i] = resolvedChild
		}
		return out, nil
	default:
		return val, nil
	}
}

func propertyReference(s string) (string, bool) {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") || len(s) < 4 {
		return "", false
	}
	return s[2 : len(s)-1], true
}
