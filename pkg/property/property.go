// Package property implements the configuration property-resolution
// layer: typed accessors over a raw string source, an environment-backed
// source, a remote AppConfig-backed source with secret-reference
// indirection, and a TTL cache that can sit in front of either.
package property

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/faasrt/core/pkg/rterrors"
)

// Source resolves a single key to its raw string value. It is the
// seam every PropertyManager implementation and the cache wrap around.
// A nil value with a nil error means the key is absent.
type Source interface {
	Lookup(ctx context.Context, key string) (*string, error)
}

// ObjectFactory turns a raw JSON string into a domain object for
// GetObject/GetTypedProperty(..., "object", ...).
type ObjectFactory func(raw string) (any, error)

// PropertyManager is the typed accessor contract every source in this
// package exposes. Each typed accessor fetches the raw string then
// parses it; a non-null raw value that fails to parse is a
// ConfigurationError, never a silently-defaulted zero value.
type PropertyManager interface {
	GetProperty(ctx context.Context, key string, def *string) (*string, error)
	GetNumber(ctx context.Context, key string, def *float64) (*float64, error)
	GetBoolean(ctx context.Context, key string, def *bool) (*bool, error)
	GetDate(ctx context.Context, key string, def *time.Time) (*time.Time, error)
	GetRegExp(ctx context.Context, key string, def *regexp.Regexp) (*regexp.Regexp, error)
	GetObject(ctx context.Context, key string, def any, factory ObjectFactory) (any, error)
	GetTypedProperty(ctx context.Context, key, typeName string, def any, factory ObjectFactory) (any, error)
}

// Manager adapts any Source into the full typed PropertyManager contract.
type Manager struct {
	Source Source
}

// NewManager wraps a Source with the typed-accessor contract.
func NewManager(src Source) *Manager {
	return &Manager{Source: src}
}

func (m *Manager) GetProperty(ctx context.Context, key string, def *string) (*string, error) {
	raw, err := m.Source.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return def, nil
	}
	return raw, nil
}

func (m *Manager) GetNumber(ctx context.Context, key string, def *float64) (*float64, error) {
	raw, err := m.Source.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return def, nil
	}
	v, perr := strconv.ParseFloat(*raw, 64)
	if perr != nil {
		return nil, rterrors.NewConfigurationError(
			fmt.Sprintf("property %q is not a valid number: %q", key, *raw),
			rterrors.WithTag(key), rterrors.WithCause(perr))
	}
	return &v, nil
}

func (m *Manager) GetBoolean(ctx context.Context, key string, def *bool) (*bool, error) {
	raw, err := m.Source.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return def, nil
	}
	v, perr := strconv.ParseBool(*raw)
	if perr != nil {
		return nil, rterrors.NewConfigurationError(
			fmt.Sprintf("property %q is not a valid boolean: %q", key, *raw),
			rterrors.WithTag(key), rterrors.WithCause(perr))
	}
	return &v, nil
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"}

func (m *Manager) GetDate(ctx context.Context, key string, def *time.Time) (*time.Time, error) {
	raw, err := m.Source.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return def, nil
	}
	var lastErr error
	for _, layout := range dateLayouts {
		if v, perr := time.Parse(layout, *raw); perr == nil {
			return &v, nil
		} else {
			lastErr = perr
		}
	}
	return nil, rterrors.NewConfigurationError(
		fmt.Sprintf("property %q is not a valid date: %q", key, *raw),
		rterrors.WithTag(key), rterrors.WithCause(lastErr))
}

func (m *Manager) GetRegExp(ctx context.Context, key string, def *regexp.Regexp) (*regexp.Regexp, error) {
	raw, err := m.Source.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return def, nil
	}
	re, perr := regexp.Compile(*raw)
	if perr != nil {
		return nil, rterrors.NewConfigurationError(
			fmt.Sprintf("property %q is not a valid regular expression: %q", key, *raw),
			rterrors.WithTag(key), rterrors.WithCause(perr))
	}
	return re, nil
}

func (m *Manager) GetObject(ctx context.Context, key string, def any, factory ObjectFactory) (any, error) {
	raw, err := m.Source.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return def, nil
	}
	if factory == nil {
		return nil, rterrors.NewConfigurationError(
			fmt.Sprintf("property %q requires an object factory", key), rterrors.WithTag(key))
	}
	obj, ferr := factory(*raw)
	if ferr != nil {
		return nil, rterrors.NewConfigurationError(
			fmt.Sprintf("property %q failed object parsing", key),
			rterrors.WithTag(key), rterrors.WithCause(ferr))
	}
	return obj, nil
}

func (m *Manager) GetTypedProperty(ctx context.Context, key, typeName string, def any, factory ObjectFactory) (any, error) {
	switch typeName {
	case "property", "string":
		var strDef *string
		if def != nil {
			s := def.(string)
			strDef = &s
		}
		return m.GetProperty(ctx, key, strDef)
	case "number":
		var numDef *float64
		if def != nil {
			n := def.(float64)
			numDef = &n
		}
		return m.GetNumber(ctx, key, numDef)
	case "boolean":
		var boolDef *bool
		if def != nil {
			b := def.(bool)
			boolDef = &b
		}
		return m.GetBoolean(ctx, key, boolDef)
	case "date":
		var dateDef *time.Time
		if def != nil {
			d := def.(time.Time)
			dateDef = &d
		}
		return m.GetDate(ctx, key, dateDef)
	case "regexp":
		var reDef *regexp.Regexp
		if def != nil {
			reDef = def.(*regexp.Regexp)
		}
		return m.GetRegExp(ctx, key, reDef)
	case "object":
		return m.GetObject(ctx, key, def, factory)
	default:
		return nil, rterrors.NewConfigurationError(
			fmt.Sprintf("unknown typed property kind %q", typeName), rterrors.WithTag(key))
	}
}
