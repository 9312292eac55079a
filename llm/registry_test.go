package llm

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeter interface{ Greet() string }

type english struct{ name string }

func (e *english) Greet() string { return "hello " + e.name }

type chinese struct{}

func (chinese) Greet() string { return "你好" }

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	en := &english{name: "a"}
	require.NoError(t, r.Register("en", en))

	got, ok := r.Get("en")
	require.True(t, ok)
	assert.Same(t, en, got)

	_, ok = r.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_RegisterRejectsDuplicatesAndNil(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("en", &english{}))

	err := r.Register("en", &english{})
	assert.True(t, errors.Is(err, ErrDuplicateComponent))

	assert.Error(t, r.Register("nil", nil))
	assert.Error(t, r.Register("", &english{}))
	assert.Panics(t, func() { r.MustRegister("en", &english{}) })
}

func TestRegistry_NamesKeepRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("c", chinese{})
	r.MustRegister("a", &english{})
	r.MustRegister("b", 42)

	assert.Equal(t, []string{"c", "a", "b"}, r.Names())

	r.Unregister("a")
	r.Unregister("unknown")
	assert.Equal(t, []string{"c", "b"}, r.Names())

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].Name)
	assert.Equal(t, "int", list[0].Type)
	assert.Equal(t, "llm.chinese", list[1].Type)
}

func TestRegistry_TypedLookup(t *testing.T) {
	r := NewRegistry()
	en := &english{name: "x"}
	r.MustRegister("en", en)
	r.MustRegister("zh", chinese{})
	r.MustRegister("answer", 42)

	assert.True(t, Has[greeter](r))
	assert.True(t, Has[*english](r))
	assert.False(t, Has[string](r))

	all := FindAll[greeter](r)
	require.Len(t, all, 2)
	assert.Equal(t, "hello x", all[0].Greet())

	v, ok := Lookup[*english](r, "en")
	assert.True(t, ok)
	assert.Same(t, en, v)

	_, ok = Lookup[*english](r, "zh")
	assert.False(t, ok)

	n, err := Unique[int](r)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestRegistry_UniqueResolution(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		r := NewRegistry()
		_, err := Unique[greeter](r)
		assert.True(t, errors.Is(err, ErrComponentNotFound))
		assert.Contains(t, err.Error(), "llm.greeter")
	})

	t.Run("ambiguous without primary", func(t *testing.T) {
		r := NewRegistry()
		r.MustRegister("en", &english{})
		r.MustRegister("zh", chinese{})
		_, err := Unique[greeter](r)
		assert.True(t, errors.Is(err, ErrAmbiguousComponent))
	})

	t.Run("primary wins", func(t *testing.T) {
		r := NewRegistry()
		r.MustRegister("en", &english{name: "first"})
		r.MustRegister("zh", chinese{}, Primary())
		g, err := Unique[greeter](r)
		require.NoError(t, err)
		assert.Equal(t, "你好", g.Greet())
		assert.True(t, r.IsPrimary("zh"))
		assert.False(t, r.IsPrimary("en"))
	})

	t.Run("two primaries", func(t *testing.T) {
		r := NewRegistry()
		r.MustRegister("en", &english{}, Primary())
		r.MustRegister("zh", chinese{}, Primary())
		_, err := Unique[greeter](r)
		assert.True(t, errors.Is(err, ErrAmbiguousComponent))
	})

	t.Run("fallback", func(t *testing.T) {
		r := NewRegistry()
		fb := chinese{}
		assert.Equal(t, fb, IfUnique[greeter](r, fb))
	})
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = r.Register(fmt.Sprintf("en-%d", i), &english{})
		}(i)
		go func() {
			defer wg.Done()
			_ = FindAll[greeter](r)
			_ = r.Names()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, r.Len())
}
