package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// timestampLayout yields names whose lexical order equals chronological
// order.
const timestampLayout = "20060102_150405"

// ArtifactName composes <database>_<YYYYMMDD_HHMMSS>.sql.gz.
func ArtifactName(database string, at time.Time) string {
	return fmt.Sprintf("%s_%s.sql.gz", database, at.Format(timestampLayout))
}

// artifactPath resolves the final artifact location. Two invocations inside
// the same second would otherwise overwrite each other, so an existing name
// gets a numeric disambiguator appended.
func artifactPath(dir, database string, at time.Time) string {
	path := filepath.Join(dir, ArtifactName(database, at))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	base := path[:len(path)-len(".sql.gz")]
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d.sql.gz", base, n)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
