package template

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mustRender renders source against context and fails the test on error.
func mustRender(t *testing.T, source string, context map[string]any) string {
	t.Helper()
	result, err := New(source, WithLogger(discardLogger())).Render(context)
	if err != nil {
		t.Fatalf("Render(%q) error = %v", source, err)
	}
	return result
}

func TestRenderVerbatim(t *testing.T) {
	inputs := []string{
		"",
		"plain text, no tokens",
		"unicode pass-through: äöü 日本語",
		"single { brace } is fine",
		"almost a token: { {not one} }",
	}
	for _, input := range inputs {
		if got := mustRender(t, input, nil); got != input {
			t.Errorf("Render(%q) = %q, want input verbatim", input, got)
		}
	}
}

func TestExpandValue(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		context map[string]any
		want    string
	}{
		{"simple", "{{test}}", map[string]any{"test": "value"}, "value"},
		{"integer", "{{test}}", map[string]any{"test": 42}, "42"},
		{"float", "{{test}}", map[string]any{"test": 1.5}, "1.5"},
		{"bool", "{{test}}", map[string]any{"test": true}, "true"},
		{"missing is empty", "{{var}}", nil, ""},
		{"surrounding text", "a {{x}} b", map[string]any{"x": "1"}, "a 1 b"},
		{"compound key", "{{item.key}}", map[string]any{"item": map[string]any{"key": "value"}}, "value"},
		{"compound two levels", "{{a.b.c}}", map[string]any{"a": map[string]any{"b": map[string]any{"c": "deep"}}}, "deep"},
		{"compound index", "{{items.[1]}}", map[string]any{"items": []any{"a", "b"}}, "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustRender(t, tt.source, tt.context); got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.source, got, tt.want)
			}
		})
	}
}

func TestExpandValueStructField(t *testing.T) {
	type item struct {
		Field string
	}
	got := mustRender(t, "{{#items}}This is {{item.Field}}{{/items}}",
		map[string]any{"items": []any{map[string]any{"item": item{Field: "value"}}}})
	if got != "This is value" {
		t.Errorf("got %q, want %q", got, "This is value")
	}
}

func TestExpandBlock(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		context map[string]any
		want    string
	}{
		{
			"mapping renders once",
			"{{#block}}{{test}}{{/block}}",
			map[string]any{"block": map[string]any{"test": "value"}},
			"value",
		},
		{
			"list preserves order",
			"{{#block}}{{.}}{{/block}}",
			map[string]any{"block": []any{1, 2, 3}},
			"123",
		},
		{
			"null block renders once with empty frame",
			"This is a {{#block}}test{{/block}}",
			map[string]any{"block": nil},
			"This is a test",
		},
		{
			"outer variable visible through null block",
			"{{#B}}{{test}}{{/B}}",
			map[string]any{"test": "value", "B": nil},
			"value",
		},
		{
			"parent block variable is found",
			"{{#A}}{{#B}}{{test}}{{/B}}{{/A}}",
			map[string]any{"A": map[string]any{"test": "value", "B": nil}},
			"value",
		},
		{
			"two instances",
			"This is a {{#block}}{{test}}{{/block}}",
			map[string]any{"block": []any{map[string]any{"test": "sec"}, map[string]any{"test": "ond"}}},
			"This is a second",
		},
		{
			"block and outer value",
			"Foo {{#block}}{{var1}}{{/block}}{{var2}}",
			map[string]any{"block": map[string]any{"var1": "1"}, "var2": "2"},
			"Foo 12",
		},
		{
			"undefined block is skipped",
			"This is the end{{#block}}foo{{/block}}",
			nil,
			"This is the end",
		},
		{
			"empty sequence renders nothing",
			"{{#block}}x{{/block}}",
			map[string]any{"block": []any{}},
			"",
		},
		{
			"scalar wraps to single instance",
			"{{#item}}This is {{.}}{{/item}}",
			map[string]any{"item": "value"},
			"This is value",
		},
		{
			"scalar block skipped when unset",
			"{{#item}}This is {{.}}{{/item}}",
			nil,
			"",
		},
		{
			"typed slice",
			"{{#block}}{{.}}{{/block}}",
			map[string]any{"block": []int{1, 2, 3}},
			"123",
		},
		{
			"self reference compound",
			"{{#item}}This is {{.field}}{{/item}}",
			map[string]any{"item": map[string]any{"field": "value"}},
			"This is value",
		},
		{
			"compound through instance mapping",
			"{{#items}}This is {{item.field}}{{/items}}",
			map[string]any{"items": []any{map[string]any{"item": map[string]any{"field": "value"}}}},
			"This is value",
		},
		{
			"nested repeated block",
			"{{#block}}{{#block}}{{item}}{{/block}}{{/block}}",
			map[string]any{"block": []any{map[string]any{"item": 0}, map[string]any{"item": 1}}},
			"0101",
		},
		{
			"nested repeated block two levels deep",
			"{{#block}}{{#block}}{{#block}}{{item}}{{/block}}{{/block}}{{/block}}",
			map[string]any{"block": []any{map[string]any{"item": 0}, map[string]any{"item": 1}}},
			"01010101",
		},
		{
			"inner block shadows outer name",
			"{{#outer}}{{#name}}{{.}}{{/name}}{{/outer}}",
			map[string]any{"name": "global", "outer": map[string]any{"name": "local"}},
			"local",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustRender(t, tt.source, tt.context); got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.source, got, tt.want)
			}
		})
	}
}

func TestBlockMarkers(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		context map[string]any
		want    string
	}{
		{
			"first marker",
			"This is the {{#block}}{{#block#First}}first{{/block#First}}{{test}}{{/block}}",
			map[string]any{"block": []any{map[string]any{"test": "2"}, map[string]any{"test": "3"}}},
			"This is the first23",
		},
		{
			"separator marker",
			"{{#block}}{{item}}{{#block#Separator}}, {{/block#Separator}}{{/block}}",
			map[string]any{"block": []any{map[string]any{"item": "0"}, map[string]any{"item": "1"}}},
			"0, 1",
		},
		{
			"separator marker single instance",
			"{{#block}}{{item}}{{#block#Separator}}, {{/block#Separator}}{{/block}}",
			map[string]any{"block": []any{map[string]any{"item": "0"}}},
			"0",
		},
		{
			"last marker",
			"{{#block}}{{item}}{{#block#Last}}last{{/block#Last}}{{/block}}",
			map[string]any{"block": []any{map[string]any{"item": "0"}, map[string]any{"item": "1"}}},
			"01last",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustRender(t, tt.source, tt.context); got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.source, got, tt.want)
			}
		})
	}
}

func TestNegatedBlock(t *testing.T) {
	tests := []struct {
		name    string
		context map[string]any
		want    string
	}{
		{"absent renders once", nil, "X"},
		{"present non-null is skipped", map[string]any{"b": "set"}, ""},
		{"present null renders once", map[string]any{"b": nil}, "X"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustRender(t, "{{!b}}X{{/b}}", tt.context); got != tt.want {
				t.Errorf("Render({{!b}}X{{/b}}) = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNegatedBlockSeesOuterScope(t *testing.T) {
	got := mustRender(t, "{{!missing}}{{greeting}}{{/missing}}",
		map[string]any{"greeting": "hello"})
	if got != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
}

func TestNamedCharacters(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"{{_SPACE}}", " "},
		{"{{_NEWLINE}}", "\n"},
		{"{{_LEFT_BRACE}}{{_RIGHT_BRACE}}", "{}"},
	}
	for _, tt := range tests {
		if got := mustRender(t, tt.source, nil); got != tt.want {
			t.Errorf("Render(%q) = %q, want %q", tt.source, got, tt.want)
		}
	}

	_, err := New("{{_NEWLINES}}", WithLogger(discardLogger())).Render(nil)
	if !errors.Is(err, ErrInvalidNamedCharacter) {
		t.Errorf("Render({{_NEWLINES}}) error = %v, want ErrInvalidNamedCharacter", err)
	}
}

func TestRenderErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		context map[string]any
		want    error
	}{
		{"unknown formatter", "{{test:foo}}", map[string]any{"test": "test"}, ErrInvalidFormatter},
		{"unterminated token", "{{test", nil, ErrInvalidToken},
		{"single closing brace", "{{test}", nil, ErrInvalidToken},
		{"missing block end", "{{#block}}", nil, ErrInvalidBlock},
		{"wrong block end", "{{#block}}{{/other}}", nil, ErrInvalidBlock},
		{"interleaved nesting", "{{#block}}{{#otherblock}}{{/block}}{{/otherblock}}", nil, ErrInvalidBlock},
		{"stray block close", "{{/block}}", nil, ErrInvalidBlock},
		{
			"path step through null",
			"{{#items}}This is {{item.field}}{{/items}}",
			map[string]any{"items": []any{map[string]any{"item": nil}}},
			ErrInvalidPath,
		},
		{
			"path step through empty mapping",
			"{{#items}}This is {{item.field}}{{/items}}",
			map[string]any{"items": []any{map[string]any{"item": map[string]any{}}}},
			ErrInvalidPath,
		},
		{
			"path index out of range",
			"{{items.[5]}}",
			map[string]any{"items": []any{"a"}},
			ErrInvalidPath,
		},
		{"hex on non-integer", "{{item:hex}}", map[string]any{"item": "nan"}, ErrInvalidFormatter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.source, WithLogger(discardLogger())).Render(tt.context)
			if !errors.Is(err, tt.want) {
				t.Errorf("Render(%q) error = %v, want %v", tt.source, err, tt.want)
			}
		})
	}
}

func TestErrorPosition(t *testing.T) {
	_, err := New("\n{{test", WithLogger(discardLogger()), WithFilename("bad.tmpl")).Render(nil)
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("error = %v (%T), want *Error", err, err)
	}
	if terr.Position.Line != 2 {
		t.Errorf("Position.Line = %d, want 2", terr.Position.Line)
	}
	if terr.Position.Filename != "bad.tmpl" {
		t.Errorf("Position.Filename = %q, want %q", terr.Position.Filename, "bad.tmpl")
	}
	if !strings.HasPrefix(err.Error(), "bad.tmpl:2:") {
		t.Errorf("Error() = %q, want bad.tmpl:2:<col> prefix", err.Error())
	}
}

// memoryResolver resolves a fixed set of include names for tests.
type memoryResolver struct{}

func (memoryResolver) Get(name string) (*Template, error) {
	switch name {
	case "item":
		return New("{{item}}", WithLogger(discardLogger())), nil
	case "block":
		return New("{{#block}}{{.}}{{/block}}", WithLogger(discardLogger())), nil
	case "text":
		return New("text", WithLogger(discardLogger())), nil
	}
	return nil, fs.ErrNotExist
}

func TestIncludes(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		context map[string]any
		want    string
	}{
		{"include value", "{{>item}}", map[string]any{"item": "theitem"}, "theitem"},
		{"include block", "{{>block}}", map[string]any{"block": "theitem"}, "theitem"},
		{"include plain text", "{{>text}}", nil, "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := New(tt.source, WithResolver(memoryResolver{}), WithLogger(discardLogger()))
			got, err := tpl.Render(tt.context)
			if err != nil {
				t.Fatalf("Render(%q) error = %v", tt.source, err)
			}
			if got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.source, got, tt.want)
			}
		})
	}

	t.Run("missing resolver", func(t *testing.T) {
		_, err := New("{{>item}}", WithLogger(discardLogger())).Render(nil)
		if !errors.Is(err, ErrNoResolver) {
			t.Errorf("error = %v, want ErrNoResolver", err)
		}
	})

	t.Run("resolver errors propagate unwrapped", func(t *testing.T) {
		tpl := New("{{>unknown}}", WithResolver(memoryResolver{}), WithLogger(discardLogger()))
		_, err := tpl.Render(nil)
		if !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("error = %v, want fs.ErrNotExist", err)
		}
	})
}

func TestRenderPairs(t *testing.T) {
	tpl := New("{{a}}{{b}}", WithLogger(discardLogger()))

	got, err := tpl.RenderPairs("a", "1", "b", 2)
	if err != nil {
		t.Fatalf("RenderPairs() error = %v", err)
	}
	if got != "12" {
		t.Errorf("RenderPairs() = %q, want %q", got, "12")
	}

	if _, err = tpl.RenderPairs("a"); err == nil {
		t.Error("RenderPairs with an odd argument count should fail")
	}
	if _, err = tpl.RenderPairs(1, "a"); err == nil {
		t.Error("RenderPairs with a non-string name should fail")
	}
}

func TestRenderTo(t *testing.T) {
	var sb strings.Builder
	tpl := New("{{x}}!", WithLogger(discardLogger()))
	if err := tpl.RenderTo(&sb, map[string]any{"x": "hi"}); err != nil {
		t.Fatalf("RenderTo() error = %v", err)
	}
	if sb.String() != "hi!" {
		t.Errorf("RenderTo() wrote %q, want %q", sb.String(), "hi!")
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	tpl := New("{{#b}}{{.}}{{#b#Separator}},{{/b#Separator}}{{/b}}", WithLogger(discardLogger()))
	context := map[string]any{"b": []any{1, 2, 3}}

	first := mustRenderTemplate(t, tpl, context)
	second := mustRenderTemplate(t, tpl, context)
	if first != second {
		t.Errorf("renders differ: %q vs %q", first, second)
	}
	if first != "1,2,3" {
		t.Errorf("render = %q, want %q", first, "1,2,3")
	}
}

func TestConcurrentRenders(t *testing.T) {
	tpl := New("{{#items}}{{.}}{{/items}}", WithLogger(discardLogger()))
	context := map[string]any{"items": []any{"a", "b", "c"}}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := tpl.Render(context)
			if err != nil {
				t.Errorf("Render() error = %v", err)
				return
			}
			if got != "abc" {
				t.Errorf("Render() = %q, want %q", got, "abc")
			}
		}()
	}
	wg.Wait()
}

func mustRenderTemplate(t *testing.T, tpl *Template, context map[string]any) string {
	t.Helper()
	result, err := tpl.Render(context)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return result
}
