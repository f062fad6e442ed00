// Package migrations содержит SQL-миграции схемы, встроенные в бинарник.
package migrations

import "embed"

// FS хранит файлы миграций для golang-migrate.
//
//go:embed *.sql
var FS embed.FS
