package db

import "os"

// dockerMarker is replaced in tests
var dockerMarker = "/.dockerenv"

// inDocker reports whether the process runs in a container, where the
// sqlite file has to come from a mounted volume instead of being created
func inDocker() bool {
	_, err := os.Stat(dockerMarker)
	return err == nil
}
