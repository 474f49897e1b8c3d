package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Gokul-labb/p2p-proto/convert"
)

var (
	convertTarget string
	convertOutput string
)

var convertCmd = &cobra.Command{
	Use:   "convert <file>",
	Short: "Convert a file locally between text and PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		source := convert.DetectFormat(data)
		target := convert.ParseFormat(convertTarget)
		if target == convert.FormatUnknown {
			return fmt.Errorf("unknown target format %q", convertTarget)
		}

		converter := convert.NewConverter(convert.DefaultPDFConfig())
		out, err := converter.Convert(data, source, target)
		if err != nil {
			return err
		}

		path := convertOutput
		if path == "" {
			path = convert.ConvertedFilename(args[0], target)
		}
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return err
		}
		fmt.Printf("Converted %s (%s) to %s (%s)\n", args[0], source, path, target)
		return nil
	},
}

var detectCmd = &cobra.Command{
	Use:   "detect <file>...",
	Short: "Detect the format of files by content",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			fmt.Printf("%-40s %s\n", path, convert.DetectFormat(data))
		}
		return nil
	},
}

func init() {
	convertCmd.Flags().StringVarP(&convertTarget, "to", "t", "", "target format (text, pdf)")
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "output path")
	convertCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(detectCmd)
}
