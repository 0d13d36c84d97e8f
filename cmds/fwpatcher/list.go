package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinytoy-sec/FwPatcher/pkg/compression"
	"github.com/tinytoy-sec/FwPatcher/pkg/log"
	"github.com/tinytoy-sec/FwPatcher/pkg/patch"
	"github.com/tinytoy-sec/FwPatcher/pkg/uefi"
)

var flagJSON bool

type listFile struct {
	GUID        string `json:"GUID"`
	Type        string `json:"Type"`
	Offset      uint64 `json:"Offset"`
	Size        uint64 `json:"Size"`
	Name        string `json:"Name,omitempty"`
	Compression string `json:"Compression,omitempty"`
}

type listVolume struct {
	Offset     uint64     `json:"Offset"`
	Length     uint64     `json:"Length"`
	FileSystem string     `json:"FileSystem"`
	Name       string     `json:"Name,omitempty"`
	FreeSpace  uint64     `json:"FreeSpace"`
	Files      []listFile `json:"Files,omitempty"`
}

var listCmd = &cobra.Command{
	Use:   "list <image>",
	Short: "show the volumes and files of a firmware image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		buf, err := patch.ReadImage(args[0])
		if err != nil {
			return err
		}

		region, base := buf, uint64(0)
		if uefi.IsFlashImage(buf) {
			img, err := uefi.ParseFlashImage(buf)
			if err != nil {
				return err
			}
			if !flagJSON {
				fmt.Printf("%v\n%v\n%v\n", img.IFD.DescriptorMap, img.IFD.Region, img.IFD.Master)
			}
			start, end, err := img.BIOSBounds()
			if err != nil {
				return err
			}
			region, base = buf[start:end], start
		}

		fvs := uefi.ScanFirmwareVolumes(region, base)
		if len(fvs) == 0 {
			return fmt.Errorf("%s holds no firmware volumes", args[0])
		}

		volumes := make([]listVolume, 0, len(fvs))
		for _, fv := range fvs {
			volumes = append(volumes, describeVolume(fv))
		}
		if flagJSON {
			out, err := json.MarshalIndent(volumes, "", "    ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}
		for _, vol := range volumes {
			printVolume(vol)
		}
		return nil
	},
}

func describeVolume(fv *uefi.FirmwareVolume) listVolume {
	vol := listVolume{
		Offset:     fv.FVOffset,
		Length:     fv.Length,
		FileSystem: fv.FVType,
	}
	if vol.FileSystem == "" {
		vol.FileSystem = fv.FileSystemGUID.String()
	}
	if fv.ExtHeaderOffset != 0 {
		vol.Name = fv.FVName.String()
	}
	files, err := fv.Files()
	if err != nil {
		log.Warnf("volume at %#x: %v", fv.FVOffset, err)
		return vol
	}
	vol.FreeSpace = fv.FreeSpace
	for _, f := range files {
		vol.Files = append(vol.Files, describeFile(f))
	}
	return vol
}

func describeFile(f *uefi.File) listFile {
	lf := listFile{
		GUID:   f.Header.GUID.String(),
		Type:   f.Header.Type.String(),
		Offset: f.Offset,
		Size:   f.Header.ExtendedSize,
	}
	sections, err := f.Sections()
	if err != nil {
		log.Debugf("file %v: %v", f.Header.GUID, err)
		return lf
	}
	for _, s := range sections {
		if s.Name != "" && lf.Name == "" {
			lf.Name = s.Name
		}
		if s.GUIDDefined != nil && lf.Compression == "" {
			if codec := compression.CompressorFromGUID(&s.GUIDDefined.GUID); codec != nil {
				lf.Compression = codec.Name()
			}
		}
	}
	return lf
}

func printVolume(vol listVolume) {
	name := vol.Name
	if name != "" {
		name = " " + name
	}
	fmt.Printf("volume at %#x, %#x bytes, %s%s, %#x free\n",
		vol.Offset, vol.Length, vol.FileSystem, name, vol.FreeSpace)
	for _, f := range vol.Files {
		line := fmt.Sprintf("  %#-10x %-38s %-20s %#x", f.Offset, f.GUID, f.Type, f.Size)
		if f.Name != "" {
			line += " " + f.Name
		}
		if f.Compression != "" {
			line += " (" + f.Compression + ")"
		}
		fmt.Println(line)
	}
}

func init() {
	listCmd.Flags().BoolVar(&flagJSON, "json", false, "emit the listing as JSON")
	rootCmd.AddCommand(listCmd)
}
