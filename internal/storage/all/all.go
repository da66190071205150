// Package all registers every vector repository backend with the storage
// factory. Commands import it for side effects and let the config pick one.
package all

import (
	_ "ragpipe/internal/storage/mssql"
	_ "ragpipe/internal/storage/postgres"
	_ "ragpipe/internal/storage/sqlite"
)
