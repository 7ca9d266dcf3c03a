package template

import "fmt"

// ValueFormatter transforms a single resolved value before it is written to
// the output. Formatters attached to one token run in declaration order,
// each receiving the previous formatter's output. A formatter may return an
// error for values it cannot handle (for example hex on a non-integer);
// the renderer reports it at the token's position.
type ValueFormatter interface {
	Format(value any) (any, error)
}

// BlockFormatter hooks the expansion of a block instance. BlockBegin runs
// before the instance body is rendered and its return value is emitted as a
// prefix; BlockEnd runs after and its return value is emitted as a suffix.
// Format post-processes the fully rendered body text of one instance.
type BlockFormatter interface {
	BlockBegin(isFirst bool) string
	BlockEnd(isLast bool) string
	Format(block string) string
}

// FormatterFactory constructs a formatter from the optional string argument
// given in the token (the part after '=' in a formatter spec, empty when
// omitted). The returned value must implement ValueFormatter or
// BlockFormatter.
type FormatterFactory func(arg string) (any, error)

var formatterRegistry = map[string]FormatterFactory{}

// RegisterFormatter registers a formatter factory under one or more names.
// Built-in formatters are registered at package init; applications may add
// their own before constructing templates. Registering an existing name
// replaces it.
func RegisterFormatter(factory FormatterFactory, names ...string) {
	for _, name := range names {
		formatterRegistry[name] = factory
	}
}

// newFormatter resolves a formatter spec against the registry.
func newFormatter(name, arg string) (any, error) {
	factory, ok := formatterRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter %q", name)
	}
	f, err := factory(arg)
	if err != nil {
		return nil, fmt.Errorf("formatter %q: %w", name, err)
	}
	return f, nil
}
