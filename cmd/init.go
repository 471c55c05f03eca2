package cmd

import (
	"fmt"
	"os"

	"codebeep/config"
)

// InitCmd writes a default configuration file
type InitCmd struct {
	Path  string `help:"Where to write the config file" arg:"" optional:"" default:"config.yaml"`
	Force bool   `help:"Overwrite an existing file" short:"f"`
}

// Run writes a default config.yaml for the user to fill in.
func (i *InitCmd) Run(cli *CLI) error {
	if _, err := os.Stat(i.Path); err == nil && !i.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", i.Path)
	}

	if err := config.Default().Save(i.Path); err != nil {
		return err
	}

	fmt.Printf("Wrote %s - fill in the matrix credentials before running the bot.\n", i.Path)
	return nil
}
