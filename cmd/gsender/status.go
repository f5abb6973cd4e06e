package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-gsender/controller"
)

// reportWait bounds the wait for the first status report.
const reportWait = 5 * time.Second

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Connect, request one status report, and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			s, err := a.openSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			reports := make(chan controller.ControllerStatus, 1)
			unsub := s.ctrl.SubscribeStatus(func(st controller.ControllerStatus) {
				if st.FirmwareState() == "" {
					return
				}
				select {
				case reports <- st:
				default:
				}
			})
			defer unsub()

			if err := s.ctrl.RequestStatusReport(); err != nil && !s.ctrl.StatusUpdatesEnabled() {
				return err
			}

			waitCtx, cancel := context.WithTimeout(ctx, reportWait)
			defer cancel()

			select {
			case st := <-reports:
				printStatus(cmd.OutOrStdout(), s.ctrl, st)
				return nil
			case <-waitCtx.Done():
				return fmt.Errorf("no status report: %w", waitCtx.Err())
			}
		},
	}
}

func printStatus(w io.Writer, ctrl *controller.Controller, st controller.ControllerStatus) {
	fmt.Fprintf(w, "firmware:  %s\n", ctrl.FirmwareVersion())
	fmt.Fprintf(w, "state:     %s (%s)\n", st.State(), st.FirmwareState())
	fmt.Fprintf(w, "machine:   %s\n", st.MachinePosition())
	fmt.Fprintf(w, "work:      %s\n", st.WorkPosition())
	fmt.Fprintf(w, "feed:      %g %s/min\n", st.FeedRate(), st.Units())
	fmt.Fprintf(w, "spindle:   %g\n", st.SpindleSpeed())
	if buf, ok := st.Buffer(); ok {
		fmt.Fprintf(w, "buffer:    %+v\n", buf)
	}
	if pins := st.Pins(); pins != "" {
		fmt.Fprintf(w, "pins:      %s\n", pins)
	}
}
