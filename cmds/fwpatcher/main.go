// Command fwpatcher splices a freshly built DXE core into an existing
// UEFI firmware image without moving anything else in the image.
package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinytoy-sec/FwPatcher/pkg/layout"
	"github.com/tinytoy-sec/FwPatcher/pkg/log"
	"github.com/tinytoy-sec/FwPatcher/pkg/patch"
)

var (
	flagConfig  string
	flagLogFile string
	flagQuiet   bool
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "fwpatcher",
	Short: "replace the DXE core of a UEFI firmware image in place",
	Long: `fwpatcher rewrites a single FFS file inside a firmware image while
keeping the image length, every checksum, and every byte outside the
touched file exactly as they were. It understands bare firmware
volumes, raw BIOS region dumps and full flash images led by an Intel
descriptor.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.SetQuiet(flagQuiet)
		log.SetVerbose(flagVerbose)
		if flagLogFile != "" {
			f, err := os.OpenFile(flagLogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
			if err != nil {
				return &patch.IOError{Op: "open log", Path: flagLogFile, Err: err}
			}
			log.SetFile(f)
		}
		return nil
	},
}

func main() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "JSON profile with paths and layout")
	pf.StringVarP(&flagLogFile, "logfile", "l", "", "append a full debug log to this file")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "only report errors on the console")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "report debug detail on the console")

	if err := rootCmd.Execute(); err != nil {
		log.Errorf("%v", err)
		os.Exit(exitStatus(err))
	}
}

// exitStatus maps the failure classes onto stable exit codes so build
// scripts can tell a bad image from a payload that simply grew too
// much.
func exitStatus(err error) int {
	switch {
	case errors.Is(err, patch.ErrNotVolume):
		return 2
	case errors.Is(err, patch.ErrModuleNotFound), errors.Is(err, layout.ErrNotFound):
		return 3
	case errors.Is(err, patch.ErrPayloadTooLarge):
		return 4
	case errors.Is(err, patch.ErrCorruptPatchResult):
		return 5
	case errors.Is(err, patch.ErrIO):
		return 6
	}
	return 1
}
