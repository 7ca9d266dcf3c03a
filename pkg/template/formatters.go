package template

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

func init() {
	RegisterFormatter(newWidthFormatter, "width", "w")
	RegisterFormatter(newPrefixFormatter, "prefix")
	RegisterFormatter(newSuffixFormatter, "suffix")
	RegisterFormatter(newDefaultFormatter, "default")
	RegisterFormatter(newUppercaseFormatter, "upper-case", "uc")
	RegisterFormatter(newEscapeNewlinesFormatter, "escape-newlines")
	RegisterFormatter(newEscapeStringFormatter, "escape-string")
	RegisterFormatter(newWrapStringFormatter, "wrap-string")
	RegisterFormatter(newCBoolFormatter, "cbool")
	RegisterFormatter(newHexFormatter, "hex")
	RegisterFormatter(newIndentFormatter, "indent")
	RegisterFormatter(newListSeparatorFormatter, "list-separator", "separator", "l-s")
}

// widthFormatter pads the string form of a value to a fixed width. A
// positive width left-aligns ("42  "), a negative width right-aligns
// ("  42"). The sign convention follows the template grammar, not Go's
// fmt verbs.
type widthFormatter struct {
	width     int
	alignLeft bool
}

func newWidthFormatter(arg string) (any, error) {
	width, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("width must be an integer, got %q", arg)
	}
	if width < 0 {
		return &widthFormatter{width: -width, alignLeft: false}, nil
	}
	return &widthFormatter{width: width, alignLeft: true}, nil
}

func (f *widthFormatter) Format(value any) (any, error) {
	s := stringify(value)
	if pad := f.width - utf8.RuneCountInString(s); pad > 0 {
		if f.alignLeft {
			s += strings.Repeat(" ", pad)
		} else {
			s = strings.Repeat(" ", pad) + s
		}
	}
	return s, nil
}

// prefixFormatter prepends a literal string.
type prefixFormatter struct {
	prefix string
}

func newPrefixFormatter(arg string) (any, error) {
	return &prefixFormatter{prefix: arg}, nil
}

func (f *prefixFormatter) Format(value any) (any, error) {
	return f.prefix + stringify(value), nil
}

// suffixFormatter appends a literal string.
type suffixFormatter struct {
	suffix string
}

func newSuffixFormatter(arg string) (any, error) {
	return &suffixFormatter{suffix: arg}, nil
}

func (f *suffixFormatter) Format(value any) (any, error) {
	return stringify(value) + f.suffix, nil
}

// defaultFormatter substitutes a literal string when the value is nil. It
// only sees nil for names that are present on the stack with a null value; a
// name that is absent everywhere renders as empty before formatters run.
type defaultFormatter struct {
	value string
}

func newDefaultFormatter(arg string) (any, error) {
	return &defaultFormatter{value: arg}, nil
}

func (f *defaultFormatter) Format(value any) (any, error) {
	if value == nil {
		return f.value, nil
	}
	return value, nil
}

type uppercaseFormatter struct{}

func newUppercaseFormatter(string) (any, error) {
	return uppercaseFormatter{}, nil
}

func (uppercaseFormatter) Format(value any) (any, error) {
	return strings.ToUpper(stringify(value)), nil
}

// escapeNewlinesFormatter replaces embedded newlines with the literal \n
// escape sequence.
type escapeNewlinesFormatter struct{}

func newEscapeNewlinesFormatter(string) (any, error) {
	return escapeNewlinesFormatter{}, nil
}

func (escapeNewlinesFormatter) Format(value any) (any, error) {
	return strings.ReplaceAll(stringify(value), "\n", `\n`), nil
}

// escapeStringFormatter escapes embedded newlines, tabs and double quotes.
type escapeStringFormatter struct{}

func newEscapeStringFormatter(string) (any, error) {
	return escapeStringFormatter{}, nil
}

func (escapeStringFormatter) Format(value any) (any, error) {
	s := stringify(value)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\t", `\t`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s, nil
}

// wrapStringFormatter wraps textual values in double quotes and passes
// everything else through untouched.
type wrapStringFormatter struct{}

func newWrapStringFormatter(string) (any, error) {
	return wrapStringFormatter{}, nil
}

func (wrapStringFormatter) Format(value any) (any, error) {
	if s, ok := value.(string); ok {
		return `"` + s + `"`, nil
	}
	return value, nil
}

// cboolFormatter renders booleans as the C literals true/false and passes
// non-booleans through.
type cboolFormatter struct{}

func newCBoolFormatter(string) (any, error) {
	return cboolFormatter{}, nil
}

func (cboolFormatter) Format(value any) (any, error) {
	if b, ok := value.(bool); ok {
		return strconv.FormatBool(b), nil
	}
	return value, nil
}

// hexFormatter renders an integer as an uppercase hex literal (0x7F).
type hexFormatter struct{}

func newHexFormatter(string) (any, error) {
	return hexFormatter{}, nil
}

func (hexFormatter) Format(value any) (any, error) {
	var n uint64
	var negative bool
	switch v := value.(type) {
	case int:
		n, negative = absUint64(int64(v))
	case int8:
		n, negative = absUint64(int64(v))
	case int16:
		n, negative = absUint64(int64(v))
	case int32:
		n, negative = absUint64(int64(v))
	case int64:
		n, negative = absUint64(v)
	case uint:
		n = uint64(v)
	case uint8:
		n = uint64(v)
	case uint16:
		n = uint64(v)
	case uint32:
		n = uint64(v)
	case uint64:
		n = v
	default:
		return nil, fmt.Errorf("hex requires an integer, got %T", value)
	}
	s := "0x" + strings.ToUpper(strconv.FormatUint(n, 16))
	if negative {
		s = "-" + s
	}
	return s, nil
}

func absUint64(v int64) (uint64, bool) {
	if v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}

// indentFormatter prefixes each block instance with a run of tabs and
// re-indents every embedded newline inside the rendered body by the same
// run.
type indentFormatter struct {
	tabs string
}

func newIndentFormatter(arg string) (any, error) {
	depth, err := strconv.Atoi(arg)
	if err != nil || depth < 0 {
		return nil, fmt.Errorf("indent depth must be a non-negative integer, got %q", arg)
	}
	return &indentFormatter{tabs: strings.Repeat("\t", depth)}, nil
}

func (f *indentFormatter) BlockBegin(bool) string {
	return f.tabs
}

func (f *indentFormatter) BlockEnd(bool) string {
	return ""
}

func (f *indentFormatter) Format(block string) string {
	return strings.ReplaceAll(block, "\n", "\n"+f.tabs)
}

// listSeparatorFormatter inserts a separator after every block instance
// except the last. The literal placeholders NEWLINE and SPACE inside the
// argument are substituted before use, since neither can be written directly
// in the formatter grammar.
type listSeparatorFormatter struct {
	value string
}

func newListSeparatorFormatter(arg string) (any, error) {
	arg = strings.ReplaceAll(arg, "NEWLINE", "\n")
	arg = strings.ReplaceAll(arg, "SPACE", " ")
	return &listSeparatorFormatter{value: arg}, nil
}

func (f *listSeparatorFormatter) BlockBegin(bool) string {
	return ""
}

func (f *listSeparatorFormatter) BlockEnd(isLast bool) string {
	if !isLast {
		return f.value
	}
	return ""
}

func (f *listSeparatorFormatter) Format(block string) string {
	return block
}
