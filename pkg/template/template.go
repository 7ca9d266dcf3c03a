package template

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// IncludeResolver maps an include name to a template so {{>name}} tokens can
// pull in other templates. Implementations may load from disk, a database,
// or anywhere else; errors they return propagate unwrapped to the caller of
// Render.
type IncludeResolver interface {
	Get(name string) (*Template, error)
}

// Option configures a Template during construction.
type Option func(*Template)

// WithResolver sets the include resolver used for {{>name}} tokens.
func WithResolver(resolver IncludeResolver) Option {
	return func(t *Template) { t.resolver = resolver }
}

// WithFilename sets the source name reported in error positions.
func WithFilename(filename string) Option {
	return func(t *Template) { t.filename = filename }
}

// WithLogger sets the logger used for expansion tracing. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Template) { t.logger = logger }
}

// Template is a parsed-on-demand template. The source text is immutable and
// shared between renders; every render walks it with its own scanner and
// context stack, so independent Render calls on one Template are safe to run
// concurrently.
type Template struct {
	source   string
	filename string
	resolver IncludeResolver
	logger   *slog.Logger
}

// New creates a template from source text.
func New(source string, opts ...Option) *Template {
	t := &Template{
		source: source,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Render expands the template against a single root context mapping and
// returns the output. Structural errors (unterminated tokens, unbalanced
// blocks, unknown formatters, failing path steps) abort the render; missing
// root names degrade to empty output instead.
func (t *Template) Render(context map[string]any) (string, error) {
	var out strings.Builder
	stack := newContextStack(context)
	if err := t.render(NewTextStream(t.source, t.filename), &out, stack); err != nil {
		return "", err
	}
	return out.String(), nil
}

// RenderTo is Render writing into w instead of returning a string. Nothing
// is written if the render fails.
func (t *Template) RenderTo(w io.Writer, context map[string]any) error {
	output, err := t.Render(context)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, output)
	return err
}

// RenderPairs renders with a root context built from alternating name/value
// arguments: RenderPairs("user", u, "count", 3). It is a convenience wrapper
// around Render.
func (t *Template) RenderPairs(pairs ...any) (string, error) {
	if len(pairs)%2 != 0 {
		return "", fmt.Errorf("template: RenderPairs needs name/value pairs, got %d arguments", len(pairs))
	}
	context := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			return "", fmt.Errorf("template: RenderPairs name at argument %d is %T, not string", i, pairs[i])
		}
		context[name] = pairs[i+1]
	}
	return t.Render(context)
}

// render is the recursive expansion loop: verbatim text is copied through,
// and every {{ starts a token that is dispatched on its kind.
func (t *Template) render(in *TextStream, out *strings.Builder, stack *contextStack) error {
	for {
		c, ok := in.Get()
		if !ok {
			return nil
		}
		if next, ok := in.Peek(); !(c == '{' && ok && next == '{') {
			out.WriteRune(c)
			continue
		}
		in.Unget()

		tok, err := readToken(in)
		if err != nil {
			return err
		}

		switch tok.Kind {
		case KindValue, KindSelfReference:
			if err := t.expandValue(out, tok, stack); err != nil {
				return err
			}
		case KindBlockOpen, KindNegatedBlockOpen:
			end, err := t.findBlockEnd(in, tok.Name)
			if err != nil {
				return err
			}
			if err := t.expandBlock(in, out, tok, end, stack); err != nil {
				return err
			}
		case KindNamedCharacter:
			r, ok := tok.namedCharacter()
			if !ok {
				return newError(ErrInvalidNamedCharacter, tok.Position,
					"unrecognized named character token %q", tok.Name)
			}
			out.WriteRune(r)
		case KindInclude:
			if err := t.expandInclude(out, tok, stack); err != nil {
				return err
			}
		case KindBlockClose:
			return newError(ErrInvalidBlock, tok.Position,
				"block close %q without a matching open block", tok.Name)
		}
	}
}

// expandValue resolves a value or self-reference token against the context
// stack, runs its formatters in declaration order and writes the result. A
// root name that is absent everywhere renders as nothing; a failing dotted
// path step against a found root is a hard error.
func (t *Template) expandValue(out *strings.Builder, tok *Token, stack *contextStack) error {
	t.logger.Debug("expanding variable", slog.String("name", tok.Name))

	name := tok.Name
	var components []string
	if tok.Kind == KindSelfReference {
		if len(name) > 1 {
			components = strings.Split(name, ".")[1:]
		}
		name = "."
	} else if strings.Contains(name, ".") {
		components = strings.Split(name, ".")
		name = components[0]
		components = components[1:]
	}

	value, found := stack.lookup(name)
	if !found {
		return nil
	}
	if len(components) > 0 {
		resolved, err := resolvePath(value, components)
		if err != nil {
			return newError(ErrInvalidPath, tok.Position,
				"cannot expand token %q: %v", tok.Name, err)
		}
		value = resolved
	}

	for _, f := range tok.Formatters {
		formatted, err := f.(ValueFormatter).Format(value)
		if err != nil {
			return newError(ErrInvalidFormatter, tok.Position,
				"cannot format token %q: %v", tok.Name, err)
		}
		value = formatted
	}

	if value == nil {
		t.logger.Warn("null value after all formatters have run",
			slog.String("name", tok.Name))
		return nil
	}

	out.WriteString(stringify(value))
	return nil
}

// findBlockEnd scans forward from the scanner position (immediately after a
// block-open token) to the matching block-close, respecting nested blocks of
// possibly different names. Nested tokens are fully parsed so formatter
// syntax inside them cannot confuse the matcher. The scan is a single pass
// over the block body per lexical block occurrence.
func (t *Template) findBlockEnd(in *TextStream, blockName string) (*Token, error) {
	open := []string{blockName}
	for {
		c, ok := in.Get()
		if !ok {
			break
		}
		if next, ok := in.Peek(); !(c == '{' && ok && next == '{') {
			continue
		}
		in.Unget()

		tok, err := readToken(in)
		if err != nil {
			return nil, err
		}
		switch tok.Kind {
		case KindBlockOpen, KindNegatedBlockOpen:
			open = append(open, tok.Name)
		case KindBlockClose:
			last := open[len(open)-1]
			open = open[:len(open)-1]
			if tok.Name != last {
				return nil, newError(ErrInvalidBlock, tok.Position,
					"cannot close block %q here, last open block is %q", tok.Name, last)
			}
			if len(open) == 0 {
				return tok, nil
			}
		}
	}
	return nil, newError(ErrInvalidBlock, in.Position(),
		"could not find block end for %q", blockName)
}

// expandBlock applies the block policy and iterates the block body over the
// normalized instances. Each instance gets its own frame with the synthetic
// self-reference and first/separator/last markers; block formatters wrap the
// instance with begin/end hooks and, when attached, cause the body to render
// into a temporary buffer so they can post-process the whole text.
func (t *Template) expandBlock(in *TextStream, out *strings.Builder, open, end *Token, stack *contextStack) error {
	t.logger.Debug("expanding block", slog.String("name", open.Name))

	negated := open.Kind == KindNegatedBlockOpen
	value, found := stack.lookup(open.Name)

	var instances []any
	switch {
	case !found:
		if !negated {
			return nil
		}
		// Negated block over an absent name: a single pass with an
		// empty frame.
		instances = normalizeInstances(nil)
	case value == nil:
		// A null block is inert whether negated or not: one pass with an
		// empty frame.
		instances = normalizeInstances(nil)
	case negated:
		return nil
	default:
		instances = normalizeInstances(value)
	}

	body := in.Substring(open.End, end.Start)

	blockFormatters := make([]BlockFormatter, 0, len(open.Formatters))
	for _, f := range open.Formatters {
		blockFormatters = append(blockFormatters, f.(BlockFormatter))
	}

	count := len(instances)
	for i, instance := range instances {
		isFirst := i == 0
		isLast := i+1 == count

		fr := newFrame(instance)
		if isFirst {
			fr.addMarker(open.Name + "#First")
		}
		if !isLast {
			fr.addMarker(open.Name + "#Separator")
		}
		if isLast {
			fr.addMarker(open.Name + "#Last")
		}

		for _, bf := range blockFormatters {
			if prefix := bf.BlockBegin(isFirst); prefix != "" {
				out.WriteString(prefix)
			}
		}

		if err := t.renderInstance(body, out, stack, fr, blockFormatters); err != nil {
			return err
		}

		for _, bf := range blockFormatters {
			if suffix := bf.BlockEnd(isLast); suffix != "" {
				out.WriteString(suffix)
			}
		}
	}
	return nil
}

// renderInstance renders one block instance with its frame pushed. The frame
// is popped on every exit path; the temporary buffer used for whole-block
// formatting only exists when a block formatter is attached.
func (t *Template) renderInstance(body string, out *strings.Builder, stack *contextStack, fr *frame, blockFormatters []BlockFormatter) error {
	stack.push(fr)
	defer stack.pop()

	if len(blockFormatters) == 0 {
		// Render directly into the output sink for performance.
		return t.render(NewTextStream(body, t.filename), out, stack)
	}

	var tmp strings.Builder
	if err := t.render(NewTextStream(body, t.filename), &tmp, stack); err != nil {
		return err
	}
	text := tmp.String()
	for _, bf := range blockFormatters {
		text = bf.Format(text)
	}
	out.WriteString(text)
	return nil
}

// expandInclude resolves {{>name}} through the configured resolver and
// renders the resolved template against the current context stack, so the
// included template sees the includer's variables.
func (t *Template) expandInclude(out *strings.Builder, tok *Token, stack *contextStack) error {
	t.logger.Debug("expanding include", slog.String("name", tok.Name))

	if t.resolver == nil {
		return newError(ErrNoResolver, tok.Position,
			"cannot resolve include %q without an include resolver", tok.Name)
	}
	included, err := t.resolver.Get(tok.Name)
	if err != nil {
		return err
	}
	return included.render(NewTextStream(included.source, included.filename), out, stack)
}
