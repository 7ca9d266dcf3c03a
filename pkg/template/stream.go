package template

import "fmt"

// TextStream is a read-only cursor over template source text. It tracks the
// current offset as well as the line/column position for error reporting,
// and supports the one-character lookahead and backtrack the tokenizer
// needs.
//
// Offsets are rune offsets into the source, so Substring boundaries recorded
// from Offset are always valid slice points. Out-of-contract calls (Unget at
// the start, Skip past the end, a bad Substring range) panic: the engine
// never performs them on any input, well-formed or not, so they indicate a
// bug rather than a recoverable condition.
type TextStream struct {
	text     []rune
	filename string
	offset   int
	line     int
	column   int
}

// NewTextStream creates a stream over the given source text. The filename is
// optional and only used in reported positions.
func NewTextStream(text string, filename string) *TextStream {
	ts := &TextStream{
		text:     []rune(text),
		filename: filename,
	}
	ts.Reset()
	return ts
}

// Reset rewinds the stream back to the beginning.
func (ts *TextStream) Reset() {
	ts.offset = 0
	ts.line = 1
	ts.column = 1
}

// Get returns the next character and advances the stream. The second return
// value is false once the end of the stream has been reached.
func (ts *TextStream) Get() (rune, bool) {
	if ts.offset >= len(ts.text) {
		return 0, false
	}
	r := ts.text[ts.offset]
	ts.offset++
	if r == '\n' {
		ts.line++
		ts.column = 1
	} else {
		ts.column++
	}
	return r, true
}

// Peek returns the next character without advancing the stream. The second
// return value is false once the end of the stream has been reached.
func (ts *TextStream) Peek() (rune, bool) {
	if ts.offset >= len(ts.text) {
		return 0, false
	}
	return ts.text[ts.offset], true
}

// Unget moves one character back. It is only ever used to re-read a just
// consumed opening brace, so it does not attempt to restore line/column
// across newlines.
func (ts *TextStream) Unget() {
	if ts.offset == 0 {
		panic("template: Unget at the beginning of the stream")
	}
	ts.offset--
	if ts.column > 1 {
		ts.column--
	}
}

// Skip advances the stream by length characters without decoding them.
func (ts *TextStream) Skip(length int) {
	if length < 0 || ts.offset+length > len(ts.text) {
		panic(fmt.Sprintf("template: Skip(%d) beyond end of stream", length))
	}
	ts.offset += length
	ts.column += length
}

// Substring returns the raw source between two offsets previously obtained
// from Offset.
func (ts *TextStream) Substring(start, end int) string {
	if start < 0 || end < start || end > len(ts.text) {
		panic(fmt.Sprintf("template: Substring(%d, %d) out of range", start, end))
	}
	return string(ts.text[start:end])
}

// Offset returns the current read offset in characters from the beginning of
// the stream.
func (ts *TextStream) Offset() int {
	return ts.offset
}

// Position returns the current read position for diagnostics.
func (ts *TextStream) Position() Position {
	return Position{Line: ts.line, Column: ts.column, Filename: ts.filename}
}

// IsAtEnd reports whether the end of the stream has been reached.
func (ts *TextStream) IsAtEnd() bool {
	return ts.offset >= len(ts.text)
}
