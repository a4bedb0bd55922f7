// Package all registers every storage backend. Import it for side effects
// from binaries that select the backend at runtime:
//
//	import _ "stagingloader/internal/storage/all"
package all

import (
	_ "stagingloader/internal/storage/mssql"
	_ "stagingloader/internal/storage/postgres"
	_ "stagingloader/internal/storage/sqlite"
)
