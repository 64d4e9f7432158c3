package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/jsbench/internal/shared/codec"
	"github.com/GriffinCanCode/jsbench/internal/shared/types"
	"github.com/GriffinCanCode/jsbench/internal/shared/utils"
	"github.com/GriffinCanCode/jsbench/internal/suite"
)

func newShareCommand(a *app) *cobra.Command {
	var compact bool
	var base string

	cmd := &cobra.Command{
		Use:   "share <suite-file>",
		Short: "Print a share link for the config of a suite file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := suite.Load(args[0])
			if err != nil {
				return err
			}
			if err := utils.ValidateConfig(s.Config); err != nil {
				return err
			}
			if base == "" {
				base = a.cfg.Server.PublicURL
			}
			link, err := codec.ShareURL(base, s.Config, compact)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), link)
			return err
		},
	}
	cmd.Flags().BoolVar(&compact, "compact", false, "zstd-compress the encoded config")
	cmd.Flags().StringVar(&base, "base", "", "link base (defaults to JSBENCH_SERVER_PUBLIC_URL)")
	return cmd
}

func newUnshareCommand(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unshare <encoded|url>",
		Short: "Decode a share link or encoded config and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := decodeShared(args[0])
			if err != nil {
				return err
			}
			if cfg == nil {
				return errors.New("no config in input")
			}
			data, err := sonic.ConfigStd.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}

// decodeShared accepts either a full share link or the bare encoded value
func decodeShared(input string) (*types.Config, error) {
	input = strings.TrimSpace(input)
	if strings.Contains(input, "://") {
		return codec.FromURL(input)
	}
	return codec.Deserialize(input)
}
