package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstOf(t *testing.T) {
	var calls []string
	track := func(name string, out Option[int]) Strategy[int] {
		return func(*Page) Option[int] {
			calls = append(calls, name)
			return out
		}
	}

	got := FirstOf(nil, track("a", None[int]()), track("b", Some(0)), track("c", Some(7)))

	v, ok := got.Get()
	assert.True(t, ok)
	assert.Equal(t, 0, v)
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestFirstOfAllAbsent(t *testing.T) {
	got := FirstOf(nil, constant(None[string]()), constant(None[string]()))

	assert.False(t, got.IsSome())
	assert.Equal(t, "fallback", got.OrElse("fallback"))
}
