/*
Package template implements a small text-templating engine for generating
source code, configuration and reports from structured data.

Templates are plain text with {{...}} tokens: {{name}} substitutes a value
looked up on a stack of nested contexts, {{#name}}...{{/name}} repeats a
block over every instance of a value, {{!name}}...{{/name}} guards on a
value being absent or null, {{>name}} includes another template, and {{_NEWLINE}}
escapes characters that cannot appear directly in template syntax. Any token
can carry a colon-separated list of formatters ({{price:width=8:prefix=$}})
that transform the value or the rendered block text.

The language is deliberately not Turing-complete: there is no arithmetic, no
expressions and no user-defined functions beyond the registered formatter
set. Missing variables render as empty output rather than failing, so
partially populated contexts degrade gracefully; structural problems
(unterminated tokens, unbalanced blocks, unknown formatters, failing dotted
paths) abort the render with a typed error carrying the source position.
*/
package template
