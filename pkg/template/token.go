package template

import (
	"strings"
)

// Kind classifies a token by the single-character prefix of its payload.
type Kind int

const (
	// KindValue is a plain variable substitution: {{name}}.
	KindValue Kind = iota
	// KindSelfReference refers to the current block instance: {{.}} or
	// {{.field}}.
	KindSelfReference
	// KindBlockOpen opens a repeated block: {{#name}}.
	KindBlockOpen
	// KindNegatedBlockOpen opens an inverse-presence guard: {{!name}}.
	KindNegatedBlockOpen
	// KindBlockClose closes a block: {{/name}}.
	KindBlockClose
	// KindNamedCharacter escapes a literal character: {{_NEWLINE}}.
	KindNamedCharacter
	// KindInclude pulls in another template: {{>name}}.
	KindInclude
)

// namedCharacters is the fixed vocabulary of {{_...}} tokens. It exists so
// characters that collide with template syntax (or that tooling tends to
// mangle, like trailing whitespace) can still be emitted.
var namedCharacters = map[string]rune{
	"LEFT_BRACE":  '{',
	"RIGHT_BRACE": '}',
	"NEWLINE":     '\n',
	"SPACE":       ' ',
}

// Token is one parsed {{...}} occurrence. Start and End are the rune offsets
// of the whole token including its delimiters, recorded so the block matcher
// can slice body text out of the enclosing stream.
type Token struct {
	Kind       Kind
	Name       string
	Formatters []any
	Start      int
	End        int
	Position   Position
}

// readToken reads one {{...}} token from the stream, which must be
// positioned on the opening brace. The grammar for the payload is
//
//	[prefix]?name(:flag[=value])*
//
// where prefix is one of # / ! _ > and each flag names a registered
// formatter.
func readToken(ts *TextStream) (*Token, error) {
	start := ts.Offset()
	pos := ts.Position()
	ts.Skip(2)

	var payload strings.Builder
	for {
		c, ok := ts.Get()
		if !ok {
			return nil, newError(ErrInvalidToken, ts.Position(),
				"end of input reached while reading token")
		}
		if c != '}' {
			payload.WriteRune(c)
			continue
		}
		if next, ok := ts.Peek(); ok && next == '}' {
			ts.Get()
			return parseToken(payload.String(), start, ts.Offset(), pos)
		}
		return nil, newError(ErrInvalidToken, ts.Position(),
			"token %q incorrectly delimited", payload.String())
	}
}

// parseToken turns a raw token payload (the text between the braces) into a
// Token. Formatter specs are resolved eagerly so that an unknown formatter
// or a capability mismatch is reported at parse time with the token's
// position.
func parseToken(payload string, start, end int, pos Position) (*Token, error) {
	tok := &Token{
		Kind:     KindValue,
		Name:     payload,
		Start:    start,
		End:      end,
		Position: pos,
	}

	if len(payload) > 0 {
		switch payload[0] {
		case '#':
			tok.Kind = KindBlockOpen
			tok.Name = payload[1:]
		case '!':
			tok.Kind = KindNegatedBlockOpen
			tok.Name = payload[1:]
		case '/':
			tok.Kind = KindBlockClose
			tok.Name = payload[1:]
		case '_':
			tok.Kind = KindNamedCharacter
			tok.Name = payload[1:]
		case '>':
			tok.Kind = KindInclude
			tok.Name = payload[1:]
		case '.':
			tok.Kind = KindSelfReference
		}
	}

	// A leading colon is not a formatter separator; it stays part of the
	// name, matching the token grammar above.
	if sep := strings.Index(tok.Name, ":"); sep > 0 {
		specs := strings.Split(tok.Name[sep+1:], ":")
		tok.Name = tok.Name[:sep]

		for _, spec := range specs {
			name, arg, _ := strings.Cut(spec, "=")
			formatter, err := newFormatter(name, arg)
			if err != nil {
				return nil, newError(ErrInvalidFormatter, pos, "%v", err)
			}
			if err := tok.checkCapability(name, formatter); err != nil {
				return nil, err
			}
			tok.Formatters = append(tok.Formatters, formatter)
		}
	}

	return tok, nil
}

// checkCapability verifies that a formatter's capability matches the token
// it is attached to: block formatters belong on block-open tokens, value
// formatters on value and self-reference tokens.
func (t *Token) checkCapability(name string, formatter any) error {
	switch formatter.(type) {
	case BlockFormatter:
		if t.Kind != KindBlockOpen {
			return newError(ErrInvalidFormatter, t.Position,
				"block formatter %q attached to a non-block token", name)
		}
	case ValueFormatter:
		if t.Kind != KindValue && t.Kind != KindSelfReference {
			return newError(ErrInvalidFormatter, t.Position,
				"value formatter %q attached to a non-value token", name)
		}
	default:
		return newError(ErrInvalidFormatter, t.Position,
			"formatter %q implements neither capability", name)
	}
	return nil
}

// namedCharacter resolves a {{_...}} token against the fixed vocabulary.
func (t *Token) namedCharacter() (rune, bool) {
	r, ok := namedCharacters[t.Name]
	return r, ok
}
