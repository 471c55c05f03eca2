package cmd

import (
	"fmt"

	"codebeep/version"
)

// VersionCmd prints version information
type VersionCmd struct{}

// Run prints the build information.
func (v *VersionCmd) Run() error {
	fmt.Println(version.Info())
	return nil
}
