/*
Package store provides a SQLite-backed repository for named templates.

It supports storing, listing and deleting templates in a single database,
JSON-based export and import for backups and transfers, and exposes an
include resolver so stored templates can reference each other through the
template engine's {{>name}} directive.
*/
package store
