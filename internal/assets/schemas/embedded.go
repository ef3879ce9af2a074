// Package schemasassets embeds the JSON schemas gohops validates local input
// against, so validation works from any working directory.
package schemasassets

import _ "embed"

// JobConfigSchema describes job configuration files (job create, flink setup).
//
//go:embed job-config.schema.json
var JobConfigSchema []byte
