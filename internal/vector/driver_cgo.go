//go:build cgo
// +build cgo

package vector

import _ "github.com/mattn/go-sqlite3"

const sqliteDriver = "sqlite3"
