package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"qspitft-go/drivers/qpanel"
	"qspitft-go/hal/setups"
	"qspitft-go/x/logx"
)

type rootOpts struct {
	config   string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOpts{}
	root := &cobra.Command{
		Use:           "qspitft",
		Short:         "Bring up QSPI TFT panels",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, ok := logx.ParseLevel(opts.logLevel)
			if !ok {
				return fmt.Errorf("unknown log level %q", opts.logLevel)
			}
			logx.SetLevel(l)
			logx.SetOutput(cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.config, "config", "c", "", "setup file (YAML)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")

	root.AddCommand(newValidateCmd(opts), newModelsCmd(opts), newBringupCmd(opts))
	return root
}

func (o *rootOpts) load() (*setups.Setup, error) {
	if o.config == "" {
		return nil, fmt.Errorf("--config is required")
	}
	return setups.Load(o.config)
}

func newValidateCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a setup file without touching hardware",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.load()
			if err != nil {
				return err
			}
			if err := s.Validate(); err != nil {
				return err
			}
			bc, _ := s.BusConfig()
			pc, _ := s.PanelConfig()
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s qspi%d @ %s, %s %dx%d @ %s\n",
				s.Board, bc.Unit, setups.Hz(bc.Frequency), pc.Model.Name, pc.Width, pc.Height, setups.Hz(pc.PixelClock))
			return nil
		},
	}
}

func newModelsCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List panel models known to a setup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			type row struct {
				name, source string
				m            qpanel.Model
			}
			var rows []row
			seen := map[string]bool{}
			if opts.config != "" {
				s, err := opts.load()
				if err != nil {
					return err
				}
				for _, spec := range s.Models {
					m, err := spec.Model()
					if err != nil {
						return err
					}
					rows = append(rows, row{spec.Name, "setup", m})
					seen[spec.Name] = true
				}
			}
			for _, n := range qpanel.Models() {
				if seen[n] {
					continue
				}
				m, _ := qpanel.LookupModel(n)
				rows = append(rows, row{n, "registry", m})
			}
			sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })

			w := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(w, "no models")
				return nil
			}
			for _, r := range rows {
				fmt.Fprintf(w, "%-12s %-8s %dx%d %s x%d reset %v/%v sleep-out %v init %d\n",
					r.name, r.source, r.m.Columns, r.m.Rows, r.m.PixelFormat, r.m.PixelLines,
					r.m.ResetHold, r.m.ResetSettle, r.m.SleepOutDelay.Round(time.Millisecond), len(r.m.Init))
			}
			return nil
		},
	}
}
