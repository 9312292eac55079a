package llm

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

var (
	// ErrComponentNotFound 没有任何组件匹配请求的类型
	ErrComponentNotFound = errors.New("component not found")
	// ErrAmbiguousComponent 多个组件匹配且无法选出唯一的 primary
	ErrAmbiguousComponent = errors.New("ambiguous component")
	// ErrDuplicateComponent 组件名已被占用
	ErrDuplicateComponent = errors.New("duplicate component name")
)

// Registry is a thread-safe registry of named singleton components.
// Components are looked up either by name or by type; when several components
// share a type, the one registered with Primary wins in Unique.
type Registry struct {
	mu         sync.RWMutex
	components map[string]*registration
	order      []string
}

type registration struct {
	name      string
	component any
	primary   bool
}

// RegisterOption configures a registration.
type RegisterOption func(*registration)

// Primary marks the component as the preferred candidate among components of the same type.
func Primary() RegisterOption {
	return func(r *registration) {
		r.primary = true
	}
}

// ComponentInfo describes a registered component for listing.
type ComponentInfo struct {
	Name    string `json:"name" yaml:"name"`
	Type    string `json:"type" yaml:"type"`
	Primary bool   `json:"primary,omitempty" yaml:"primary,omitempty"`
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		components: make(map[string]*registration),
	}
}

// Register adds a component under the given name.
// Registering a nil component or reusing a name returns an error.
func (r *Registry) Register(name string, component any, opts ...RegisterOption) error {
	if name == "" {
		return errors.New("component name is required")
	}
	if component == nil {
		return fmt.Errorf("component %q is nil", name)
	}
	reg := &registration{name: name, component: component}
	for _, opt := range opts {
		opt(reg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.components[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateComponent, name)
	}
	r.components[name] = reg
	r.order = append(r.order, name)
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, component any, opts ...RegisterOption) {
	if err := r.Register(name, component, opts...); err != nil {
		panic(err)
	}
}

// Get retrieves a component by name.
func (r *Registry) Get(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.components[name]
	if !ok {
		return nil, false
	}
	return reg.component, true
}

// IsPrimary reports whether the named component was registered with Primary.
func (r *Registry) IsPrimary(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.components[name]
	return ok && reg.primary
}

// Unregister removes a component from the registry.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.components[name]; !ok {
		return
	}
	delete(r.components, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Names returns component names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// List returns a description of every component, sorted by name.
func (r *Registry) List() []ComponentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ComponentInfo, 0, len(r.components))
	for _, reg := range r.components {
		out = append(out, ComponentInfo{
			Name:    reg.name,
			Type:    fmt.Sprintf("%T", reg.component),
			Primary: reg.primary,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered components.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.components)
}

// snapshot 按注册顺序返回注册项副本
func (r *Registry) snapshot() []registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]registration, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.components[name])
	}
	return out
}

// =============================================================================
// 按类型查找
// =============================================================================

// Lookup returns the named component if it is assignable to T.
func Lookup[T any](r *Registry, name string) (T, bool) {
	var zero T
	c, ok := r.Get(name)
	if !ok {
		return zero, false
	}
	v, ok := c.(T)
	return v, ok
}

// FindAll returns every component assignable to T, in registration order.
func FindAll[T any](r *Registry) []T {
	var out []T
	for _, reg := range r.snapshot() {
		if v, ok := reg.component.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// Has reports whether any component is assignable to T.
func Has[T any](r *Registry) bool {
	for _, reg := range r.snapshot() {
		if _, ok := reg.component.(T); ok {
			return true
		}
	}
	return false
}

// Unique resolves the single component assignable to T.
// With several candidates, exactly one of them must be primary.
func Unique[T any](r *Registry) (T, error) {
	var (
		zero       T
		candidates []registration
	)
	for _, reg := range r.snapshot() {
		if _, ok := reg.component.(T); ok {
			candidates = append(candidates, reg)
		}
	}

	switch len(candidates) {
	case 0:
		return zero, fmt.Errorf("%w: %s", ErrComponentNotFound, typeName[T]())
	case 1:
		return candidates[0].component.(T), nil
	}

	var primary *registration
	for i := range candidates {
		if !candidates[i].primary {
			continue
		}
		if primary != nil {
			return zero, fmt.Errorf("%w: more than one primary %s (%s, %s)",
				ErrAmbiguousComponent, typeName[T](), primary.name, candidates[i].name)
		}
		primary = &candidates[i]
	}
	if primary == nil {
		names := make([]string, len(candidates))
		for i, c := range candidates {
			names[i] = c.name
		}
		return zero, fmt.Errorf("%w: %d candidates of %s %v", ErrAmbiguousComponent, len(candidates), typeName[T](), names)
	}
	return primary.component.(T), nil
}

// IfUnique returns the component from Unique, or fallback when there is none
// or the choice is ambiguous.
func IfUnique[T any](r *Registry, fallback T) T {
	v, err := Unique[T](r)
	if err != nil {
		return fallback
	}
	return v
}

func typeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}
