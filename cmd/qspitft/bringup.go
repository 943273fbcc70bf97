package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"image/color"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"qspitft-go/hal/boards"
	"qspitft-go/hal/platform"
	"qspitft-go/hal/provider"
	"qspitft-go/hal/setups"
	"qspitft-go/services/display"
	"qspitft-go/x/logx"
)

type bringupOpts struct {
	platform  string
	trace     bool
	fill      string
	hold      time.Duration
	txTimeout time.Duration
}

func newBringupCmd(root *rootOpts) *cobra.Command {
	opts := &bringupOpts{}
	cmd := &cobra.Command{
		Use:   "bringup",
		Short: "Initialise the bus and panel, optionally paint a colour",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := root.load()
			if err != nil {
				return err
			}
			return runBringup(cmd.Context(), cmd.OutOrStdout(), s, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.platform, "platform", "p", "host", "host (recording fakes) or periph (Linux spidev/gpio)")
	f.BoolVar(&opts.trace, "trace", false, "print the recorded frame trace (host platform)")
	f.StringVar(&opts.fill, "fill", "", "paint the panel with an RRGGBB colour after bring-up")
	f.DurationVar(&opts.hold, "hold", 0, "keep the panel on this long before shutting it down")
	f.DurationVar(&opts.txTimeout, "tx-timeout", provider.DefaultTxTimeout, "per-frame transfer timeout")
	return cmd
}

func runBringup(ctx context.Context, w io.Writer, s *setups.Setup, opts *bringupOpts) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	board, err := s.BoardDescriptor()
	if err != nil {
		return err
	}
	var fill *color.RGBA
	if opts.fill != "" {
		c, err := parseColor(opts.fill)
		if err != nil {
			return err
		}
		fill = &c
	}

	reg, host, err := openPlatform(opts.platform, board, provider.Options{TxTimeout: opts.txTimeout})
	if err != nil {
		return err
	}
	defer reg.Close()

	d, err := display.Bringup(ctx, reg, s)
	if err != nil {
		return err
	}
	if fill != nil {
		if err := d.Panel().Fill(*fill); err != nil {
			_ = d.Close()
			return err
		}
		logx.Info("panel filled", "colour", opts.fill)
	}
	if opts.hold > 0 {
		select {
		case <-time.After(opts.hold):
		case <-ctx.Done():
		}
	}
	if err := d.Close(); err != nil {
		return err
	}

	if opts.trace {
		if host == nil {
			logx.Warn("trace is only recorded on the host platform")
			return nil
		}
		bc, _ := s.BusConfig()
		writeTrace(w, host.Unit(bc.Unit).Frames())
	}
	return nil
}

// openPlatform builds the resource registry for the named backend. The
// returned Host is nil unless the host platform was chosen.
func openPlatform(name string, board boards.Board, opts provider.Options) (*provider.Registry, *platform.Host, error) {
	switch name {
	case "host", "":
		h := platform.NewHost()
		return provider.NewRegistry(board, h, h, opts), h, nil
	case "periph":
		p, err := platform.NewPeriph()
		if err != nil {
			return nil, nil, err
		}
		return provider.NewRegistry(board, p, p, opts), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown platform %q (want host or periph)", name)
}

func parseColor(s string) (color.RGBA, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "#"))
	if err != nil || len(b) != 3 {
		return color.RGBA{}, fmt.Errorf("bad colour %q: want RRGGBB", s)
	}
	return color.RGBA{R: b[0], G: b[1], B: b[2], A: 0xFF}, nil
}

func writeTrace(w io.Writer, frames []platform.RecordedFrame) {
	if len(frames) == 0 {
		fmt.Fprintln(w, "no frames")
		return
	}
	t0 := frames[0].At
	for _, f := range frames {
		data := f.Data
		more := ""
		if len(data) > 8 {
			data, more = data[:8], "…"
		}
		fmt.Fprintf(w, "%10s ins=%02x addr=%06x lines=%d hz=%-6s len=%-6d %x%s\n",
			f.At.Sub(t0).Round(time.Microsecond), f.Instruction, f.Address, f.Lines(),
			setups.Hz(f.Hz), len(f.Data), data, more)
	}
}
