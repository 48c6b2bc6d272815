package pdp

import (
	"fmt"
	"time"
)

// Namespace identifies which side of a request an attribute describes.
type Namespace string

const (
	NamespaceSubject     Namespace = "subject"
	NamespaceResource    Namespace = "resource"
	NamespaceEnvironment Namespace = "environment"
	NamespaceAction      Namespace = "action"
)

// Kind is the declared type tag of an attribute value. Comparison operators
// dispatch on the tag instead of reflecting over arbitrary values.
type Kind string

const (
	KindString    Kind = "string"
	KindNumber    Kind = "number"
	KindBoolean   Kind = "boolean"
	KindTimestamp Kind = "timestamp"
	KindStringSet Kind = "string_set"
)

// AttributeValue is a typed, sourced, timestamped value. Value holds a
// string, float64, bool, time.Time or []string matching Kind. Values are
// immutable once constructed; build them through the constructors so the
// invariants (non-nil value, non-empty kind and source) hold.
type AttributeValue struct {
	Kind        Kind      `json:"kind" yaml:"kind"`
	Value       any       `json:"value" yaml:"value"`
	Source      string    `json:"source" yaml:"source"`
	CollectedAt time.Time `json:"collected_at" yaml:"collected_at"`
}

func newAttr(kind Kind, value any, source string) AttributeValue {
	return AttributeValue{Kind: kind, Value: value, Source: source, CollectedAt: time.Now()}
}

func StringAttr(v, source string) AttributeValue {
	return newAttr(KindString, v, source)
}

func NumberAttr(v float64, source string) AttributeValue {
	return newAttr(KindNumber, v, source)
}

func BoolAttr(v bool, source string) AttributeValue {
	return newAttr(KindBoolean, v, source)
}

func TimeAttr(v time.Time, source string) AttributeValue {
	return newAttr(KindTimestamp, v, source)
}

func SetAttr(v []string, source string) AttributeValue {
	set := append([]string(nil), v...)
	return newAttr(KindStringSet, set, source)
}

// AttrFromAny infers the kind from a dynamically typed value. Integers are
// widened to float64; unsupported types are stringified.
func AttrFromAny(v any, source string) AttributeValue {
	switch val := v.(type) {
	case string:
		return StringAttr(val, source)
	case bool:
		return BoolAttr(val, source)
	case int:
		return NumberAttr(float64(val), source)
	case int32:
		return NumberAttr(float64(val), source)
	case int64:
		return NumberAttr(float64(val), source)
	case float32:
		return NumberAttr(float64(val), source)
	case float64:
		return NumberAttr(val, source)
	case time.Time:
		return TimeAttr(val, source)
	case []string:
		return SetAttr(val, source)
	case []any:
		set := make([]string, 0, len(val))
		for _, item := range val {
			set = append(set, fmt.Sprint(item))
		}
		return SetAttr(set, source)
	default:
		return StringAttr(fmt.Sprint(val), source)
	}
}

// Validate reports whether the value satisfies the model invariants.
func (a AttributeValue) Validate() error {
	if a.Value == nil {
		return &ConfigError{Msg: "attribute value must not be nil"}
	}
	if a.Kind == "" {
		return &ConfigError{Msg: "attribute kind must not be empty"}
	}
	if a.Source == "" {
		return &ConfigError{Msg: "attribute source must not be empty"}
	}
	return nil
}

// asString returns the value as a string when the kind permits.
func (a AttributeValue) asString() (string, bool) {
	s, ok := a.Value.(string)
	return s, ok && a.Kind == KindString
}

// asNumber returns the value as a float64, tolerating int-typed payloads
// that arrive through JSON/YAML round trips.
func (a AttributeValue) asNumber() (float64, bool) {
	if a.Kind != KindNumber {
		return 0, false
	}
	switch v := a.Value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func (a AttributeValue) asBool() (bool, bool) {
	b, ok := a.Value.(bool)
	return b, ok && a.Kind == KindBoolean
}

func (a AttributeValue) asTime() (time.Time, bool) {
	t, ok := a.Value.(time.Time)
	return t, ok && a.Kind == KindTimestamp
}

func (a AttributeValue) asSet() ([]string, bool) {
	if a.Kind != KindStringSet {
		return nil, false
	}
	switch v := a.Value.(type) {
	case []string:
		return v, true
	case []any:
		set := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			set = append(set, s)
		}
		return set, true
	}
	return nil, false
}

// Attributes groups the four attribute namespaces for one evaluation. A
// fresh instance is built per request and never persisted.
type Attributes struct {
	Subject     map[string]AttributeValue `json:"subject" yaml:"subject"`
	Resource    map[string]AttributeValue `json:"resource" yaml:"resource"`
	Environment map[string]AttributeValue `json:"environment" yaml:"environment"`
	Action      map[string]AttributeValue `json:"action" yaml:"action"`
}

func NewAttributes() *Attributes {
	return &Attributes{
		Subject:     make(map[string]AttributeValue),
		Resource:    make(map[string]AttributeValue),
		Environment: make(map[string]AttributeValue),
		Action:      make(map[string]AttributeValue),
	}
}

func (a *Attributes) namespace(ns Namespace) map[string]AttributeValue {
	switch ns {
	case NamespaceSubject:
		return a.Subject
	case NamespaceResource:
		return a.Resource
	case NamespaceEnvironment:
		return a.Environment
	case NamespaceAction:
		return a.Action
	}
	return nil
}

// Lookup finds an attribute by namespace and name.
func (a *Attributes) Lookup(ns Namespace, name string) (AttributeValue, bool) {
	if a == nil {
		return AttributeValue{}, false
	}
	m := a.namespace(ns)
	if m == nil {
		return AttributeValue{}, false
	}
	v, ok := m[name]
	return v, ok
}

// Set stores an attribute, replacing any previous value of the same name.
func (a *Attributes) Set(ns Namespace, name string, v AttributeValue) {
	if m := a.namespace(ns); m != nil {
		m[name] = v
	}
}

// Merge copies all values from src into the given namespace. Existing names
// are not overwritten so earlier providers take precedence.
func (a *Attributes) Merge(ns Namespace, src map[string]AttributeValue) {
	m := a.namespace(ns)
	if m == nil {
		return
	}
	for k, v := range src {
		if _, exists := m[k]; !exists {
			m[k] = v
		}
	}
}
