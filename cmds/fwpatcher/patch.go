package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tinytoy-sec/FwPatcher/pkg/config"
	"github.com/tinytoy-sec/FwPatcher/pkg/log"
	"github.com/tinytoy-sec/FwPatcher/pkg/patch"
)

var (
	flagReference string
	flagInput     string
	flagOutput    string
	flagTarget    string
	flagOffset    offsetValue
)

// offsetValue is a flag taking flash offsets in the 0x notation of
// flash maps.
type offsetValue struct {
	set bool
	val uint64
}

var _ pflag.Value = (*offsetValue)(nil)

func (o *offsetValue) String() string {
	if !o.set {
		return ""
	}
	return fmt.Sprintf("%#x", o.val)
}

func (o *offsetValue) Set(s string) error {
	val, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return err
	}
	o.set, o.val = true, val
	return nil
}

func (o *offsetValue) Type() string {
	return "offset"
}

var patchCmd = &cobra.Command{
	Use:   "patch",
	Short: "splice a payload into the image's DXE core slot",
	Long: `patch loads the reference firmware, finds the target module, and
writes a copy of the firmware with the module's payload replaced by
the input file. Paths come from the profile, flags override it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := &config.Config{}
		if flagConfig != "" {
			var err error
			cfg, err = config.Load(flagConfig)
			if err != nil {
				return err
			}
		}
		if flagReference != "" {
			cfg.Paths.ReferenceFw = flagReference
		}
		if flagInput != "" {
			cfg.Paths.Input = flagInput
		}
		if flagOutput != "" {
			cfg.Paths.Output = flagOutput
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		dir, err := cfg.LayoutDirectory()
		if err != nil {
			return err
		}
		target, err := dir.Resolve(flagTarget)
		if err != nil {
			return fmt.Errorf("resolving target: %w (known entries: %s)", err, dir.Names())
		}
		if flagOffset.set {
			target.Offset = flagOffset.val
		}

		start := time.Now()
		reference, err := patch.ReadImage(cfg.Paths.ReferenceFw)
		if err != nil {
			return err
		}
		payload, err := patch.ReadImage(cfg.Paths.Input)
		if err != nil {
			return err
		}
		if len(payload) == 0 {
			return fmt.Errorf("payload %s is empty", cfg.Paths.Input)
		}
		log.Infof("patching %s (%#x bytes) with %s (%#x bytes) into entry %s",
			cfg.Paths.ReferenceFw, len(reference), cfg.Paths.Input, len(payload), target.Name)

		patched, err := patch.Patch(reference, payload, target)
		if err != nil {
			return err
		}
		if err := patch.WriteImage(cfg.Paths.Output, patched); err != nil {
			return err
		}
		log.Infof("wrote %s, %#x bytes, took %v",
			cfg.Paths.Output, len(patched), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	patchCmd.Flags().StringVarP(&flagReference, "reference", "r", "", "reference firmware image, .lzma accepted")
	patchCmd.Flags().StringVarP(&flagInput, "input", "i", "", "replacement payload file")
	patchCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "where to write the patched image")
	patchCmd.Flags().StringVarP(&flagTarget, "target", "t", config.DXECoreEntryName, "layout entry name or file GUID to replace")
	patchCmd.Flags().Var(&flagOffset, "offset", "override the nominal offset of the target entry")
	rootCmd.AddCommand(patchCmd)
}
