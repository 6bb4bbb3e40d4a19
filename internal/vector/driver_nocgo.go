//go:build !cgo
// +build !cgo

package vector

import _ "modernc.org/sqlite"

const sqliteDriver = "sqlite"
