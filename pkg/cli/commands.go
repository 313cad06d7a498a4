package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/probelink/probelink/internal/probestore"
	"github.com/probelink/probelink/internal/simulator"
	"github.com/probelink/probelink/pkg/dap"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func newList(app appProvider) *cobra.Command {
	var known bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List attached CMSIS-DAP probes",
		Long:  `List CMSIS-DAP probes attached to the host and record them in the probe registry.`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a := app()
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() {
				err = multierr.Append(err, store.Close())
			}()

			var records []probestore.KnownProbe
			if known {
				records, err = store.List()
				if err != nil {
					return err
				}
			} else {
				backend, err := a.backend()
				if err != nil {
					return err
				}
				probes, err := backend.Enumerate(a.cfg.Capacity)
				if err != nil {
					return err
				}
				for _, probe := range probes {
					rec, err := store.Touch(probe)
					if err != nil {
						return err
					}
					records = append(records, rec)
				}
			}
			jsonB, err := json.MarshalIndent(records, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonB))
			return nil
		},
	}
	cmd.Flags().BoolVar(&known, "known", false, "list every probe ever seen instead of scanning")
	return cmd
}

func newInfo(app appProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "info [path]",
		Short: "Open a probe and query its identity",
		Long:  `Open a probe session, report the negotiated HID report size and query the probe's DAP_Info identity strings.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a := app()
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			sess, err := a.openSession(path)
			if err != nil {
				return err
			}
			defer func() {
				err = multierr.Append(err, sess.Close())
			}()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Report size: %d bytes\n", sess.ReportSize())
			for _, field := range []struct {
				label string
				id    byte
			}{
				{"Vendor", infoVendorName},
				{"Product", infoProductName},
				{"Serial", infoSerialNumber},
				{"Firmware", infoFirmwareVersion},
			} {
				value, err := dapInfoString(sess, field.id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %s\n", field.label, value)
			}
			size, err := dapInfoPacketSize(sess)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Max packet size: %d bytes\n", size)
			return nil
		},
	}
}

func newWatch(app appProvider) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Report probes as they attach and detach",
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("invalid interval %s: must be positive", interval)
			}
			a := app()
			backend, err := a.backend()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			seen := make(map[string]dap.ProbeInfo)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				probes, err := backend.Enumerate(a.cfg.Capacity)
				if err != nil {
					return err
				}
				current := make(map[string]dap.ProbeInfo, len(probes))
				for _, probe := range probes {
					current[probe.Path] = probe
					if _, ok := seen[probe.Path]; !ok {
						fmt.Fprintf(out, "+ %s\n", probe)
					}
				}
				for path, probe := range seen {
					if _, ok := current[path]; !ok {
						fmt.Fprintf(out, "- %s\n", probe)
					}
				}
				seen = current

				select {
				case <-cmd.Context().Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "rescan interval")
	return cmd
}

func newSimulate(app appProvider) *cobra.Command {
	cfg := simulator.Config{
		Name:      "probelink CMSIS-DAP simulator",
		VendorID:  0x6666,
		ProductID: 0x4001,
	}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Attach a virtual CMSIS-DAP probe",
		Long:  `Attach a virtual CMSIS-DAP probe through uhid. The probe echoes opcodes and answers DAP_Info, which is enough to exercise the transport without hardware. Requires access to /dev/uhid.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			probe, err := simulator.New(a.log.Named("simulator"), cfg)
			if err != nil {
				return err
			}
			return probe.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&cfg.Name, "name", cfg.Name, "device name")
	cmd.Flags().Uint32Var(&cfg.VendorID, "vid", cfg.VendorID, "USB vendor ID")
	cmd.Flags().Uint32Var(&cfg.ProductID, "pid", cfg.ProductID, "USB product ID")
	return cmd
}
