package parser

// Option holds a value that may be absent. Extraction strategies return None
// to let the next strategy in a cascade try.
type Option[T any] struct {
	value T
	ok    bool
}

func Some[T any](v T) Option[T] {
	return Option[T]{value: v, ok: true}
}

func None[T any]() Option[T] {
	return Option[T]{}
}

func (o Option[T]) Get() (T, bool) {
	return o.value, o.ok
}

func (o Option[T]) IsSome() bool {
	return o.ok
}

func (o Option[T]) OrElse(fallback T) T {
	if o.ok {
		return o.value
	}
	return fallback
}

// Strategy extracts one field from a page.
type Strategy[T any] func(*Page) Option[T]

// FirstOf evaluates strategies in order and returns the first present value.
func FirstOf[T any](p *Page, strategies ...Strategy[T]) Option[T] {
	for _, s := range strategies {
		if v := s(p); v.IsSome() {
			return v
		}
	}
	return None[T]()
}
