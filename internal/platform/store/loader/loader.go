// Package loader registers the invite ledger drivers via blank imports.
package loader

import (
	_ "github.com/MahdiBaghbani/labrouter-go/internal/platform/store/memory"
	_ "github.com/MahdiBaghbani/labrouter-go/internal/platform/store/sqlite"
)
