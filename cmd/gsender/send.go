package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-gsender/controller"
	"github.com/arloliu/go-gsender/logger"
)

func newSendCmd(a *app) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "send FILE",
		Short: "Stream a G-code file to the controller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := a.openSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			return streamFile(ctx, s.ctrl, f, cmd.OutOrStdout(), quiet)
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not echo firmware responses")

	return cmd
}

// streamFile queues every non-empty line of r and streams them, returning
// once the controller leaves Run.
func streamFile(ctx context.Context, ctrl *controller.Controller, r io.Reader, out io.Writer, quiet bool) error {
	var queued int
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		cmd := ctrl.CreateCommand(sc.Text())
		if cmd.Processed == "" {
			continue
		}
		if err := ctrl.QueueGcodeCommand(cmd); err != nil {
			return fmt.Errorf("queue %q: %w", cmd.Original, err)
		}
		queued++
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if queued == 0 {
		fmt.Fprintln(out, "nothing to send")
		return nil
	}

	var completed, failed atomic.Int64
	unsubCmd := ctrl.SubscribeCommands(func(ev controller.CommandEvent) {
		switch ev.Kind {
		case controller.CommandCompleted:
			completed.Add(1)
		case controller.CommandFailed:
			failed.Add(1)
			fmt.Fprintf(out, "error: %s -> %s\n", ev.Command.Processed, ev.Command.Response())
		}
	})
	defer unsubCmd()

	if !quiet {
		unsubConsole := ctrl.SubscribeConsole(func(typ controller.MessageType, text string) {
			if typ != controller.Verbose {
				fmt.Fprintf(out, "[%s] %s\n", typ, text)
			}
		})
		defer unsubConsole()
	}

	// listeners run on the event loop and must not block
	done := make(chan controller.ControllerState, 1)
	var running atomic.Bool
	unsubStatus := ctrl.SubscribeStatus(func(st controller.ControllerStatus) {
		switch st.State() {
		case controller.Run, controller.Hold:
			running.Store(true)
			return
		case controller.Idle, controller.Check:
			if !running.Load() {
				return
			}
		case controller.Alarm, controller.Disconnected:
		default:
			return
		}
		select {
		case done <- st.State():
		default:
		}
	})
	defer unsubStatus()

	logger.Info("streaming", "commands", queued)
	if err := ctrl.StreamCommands(); err != nil {
		return err
	}

	var final controller.ControllerState
	select {
	case final = <-done:
	case <-ctx.Done():
		logger.Warn("interrupted, cancelling stream")
		if err := ctrl.CancelSend(); err != nil {
			logger.Warn("cancel send", "error", err)
		}

		return ctx.Err()
	}

	fmt.Fprintf(out, "%d of %d commands completed, %d failed, final state %s\n",
		completed.Load(), queued, failed.Load(), final)

	switch {
	case final == controller.Alarm || final == controller.Disconnected:
		return fmt.Errorf("stream stopped in state %s", final)
	case failed.Load() > 0:
		return errors.New("firmware rejected one or more commands")
	}

	return nil
}
