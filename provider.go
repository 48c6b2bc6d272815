package pdp

import (
	"context"
	"sync"
)

// AttributeProvider supplies attribute values for one or more namespaces at
// evaluation time. "Not found" is not an error: a provider that knows
// nothing about an id returns an empty map. A non-nil error means the
// provider failed, and the evaluation path treats that as a denial.
type AttributeProvider interface {
	GetSubjectAttributes(ctx context.Context, subjectID string) (map[string]AttributeValue, error)
	GetResourceAttributes(ctx context.Context, resourceID string) (map[string]AttributeValue, error)
	GetEnvironmentAttributes(ctx context.Context, hints map[string]any) (map[string]AttributeValue, error)
	GetActionAttributes(ctx context.Context, action string) (map[string]AttributeValue, error)
}

// MemoryAttributeProvider serves attributes from in-process maps. Useful for
// tests and for setups where attributes are pushed rather than fetched.
type MemoryAttributeProvider struct {
	mu          sync.RWMutex
	subjects    map[string]map[string]AttributeValue
	resources   map[string]map[string]AttributeValue
	environment map[string]AttributeValue
	actions     map[string]map[string]AttributeValue
}

func NewMemoryAttributeProvider() *MemoryAttributeProvider {
	return &MemoryAttributeProvider{
		subjects:    make(map[string]map[string]AttributeValue),
		resources:   make(map[string]map[string]AttributeValue),
		environment: make(map[string]AttributeValue),
		actions:     make(map[string]map[string]AttributeValue),
	}
}

func (p *MemoryAttributeProvider) SetSubjectAttribute(subjectID, name string, v AttributeValue) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subjects[subjectID] == nil {
		p.subjects[subjectID] = make(map[string]AttributeValue)
	}
	p.subjects[subjectID][name] = v
}

func (p *MemoryAttributeProvider) SetResourceAttribute(resourceID, name string, v AttributeValue) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resources[resourceID] == nil {
		p.resources[resourceID] = make(map[string]AttributeValue)
	}
	p.resources[resourceID][name] = v
}

func (p *MemoryAttributeProvider) SetEnvironmentAttribute(name string, v AttributeValue) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.environment[name] = v
}

func (p *MemoryAttributeProvider) SetActionAttribute(action, name string, v AttributeValue) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.actions[action] == nil {
		p.actions[action] = make(map[string]AttributeValue)
	}
	p.actions[action][name] = v
}

func (p *MemoryAttributeProvider) GetSubjectAttributes(_ context.Context, subjectID string) (map[string]AttributeValue, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copyAttrMap(p.subjects[subjectID]), nil
}

func (p *MemoryAttributeProvider) GetResourceAttributes(_ context.Context, resourceID string) (map[string]AttributeValue, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copyAttrMap(p.resources[resourceID]), nil
}

func (p *MemoryAttributeProvider) GetEnvironmentAttributes(_ context.Context, _ map[string]any) (map[string]AttributeValue, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copyAttrMap(p.environment), nil
}

func (p *MemoryAttributeProvider) GetActionAttributes(_ context.Context, action string) (map[string]AttributeValue, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copyAttrMap(p.actions[action]), nil
}

func copyAttrMap(src map[string]AttributeValue) map[string]AttributeValue {
	out := make(map[string]AttributeValue, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// MultiProvider queries several providers in order and merges their results.
// When two providers supply the same attribute, the earlier provider wins.
// The first provider error aborts the merge.
type MultiProvider struct {
	providers []AttributeProvider
}

func NewMultiProvider(providers ...AttributeProvider) *MultiProvider {
	return &MultiProvider{providers: providers}
}

func (m *MultiProvider) GetSubjectAttributes(ctx context.Context, subjectID string) (map[string]AttributeValue, error) {
	return m.merge(func(p AttributeProvider) (map[string]AttributeValue, error) {
		return p.GetSubjectAttributes(ctx, subjectID)
	})
}

func (m *MultiProvider) GetResourceAttributes(ctx context.Context, resourceID string) (map[string]AttributeValue, error) {
	return m.merge(func(p AttributeProvider) (map[string]AttributeValue, error) {
		return p.GetResourceAttributes(ctx, resourceID)
	})
}

func (m *MultiProvider) GetEnvironmentAttributes(ctx context.Context, hints map[string]any) (map[string]AttributeValue, error) {
	return m.merge(func(p AttributeProvider) (map[string]AttributeValue, error) {
		return p.GetEnvironmentAttributes(ctx, hints)
	})
}

func (m *MultiProvider) GetActionAttributes(ctx context.Context, action string) (map[string]AttributeValue, error) {
	return m.merge(func(p AttributeProvider) (map[string]AttributeValue, error) {
		return p.GetActionAttributes(ctx, action)
	})
}

func (m *MultiProvider) merge(fetch func(AttributeProvider) (map[string]AttributeValue, error)) (map[string]AttributeValue, error) {
	out := make(map[string]AttributeValue)
	for _, p := range m.providers {
		attrs, err := fetch(p)
		if err != nil {
			return nil, err
		}
		for name, v := range attrs {
			if _, exists := out[name]; !exists {
				out[name] = v
			}
		}
	}
	return out, nil
}
