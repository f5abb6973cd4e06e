package controller

import (
	"time"
)

// RequestStatusReport sends a status request unless one is already
// outstanding. At most one request is unanswered at any time.
func (c *Controller) RequestStatusReport() error {
	c.mu.Lock()
	state, comm := c.status.State(), c.comm
	c.mu.Unlock()

	if comm == nil || state == Disconnected || state == Connecting {
		return stateError("request status", state)
	}

	if !c.pollOutstanding.CompareAndSwap(false, true) {
		return nil
	}

	if err := comm.SendByteImmediately(c.fw.Realtime().StatusReport); err != nil {
		c.pollOutstanding.Store(false)

		c.mu.Lock()
		if c.comm == comm {
			c.writeErrLocked(err)
		}
		c.mu.Unlock()

		return err
	}

	return nil
}

// pollStatus is the status poll task. It stops the task only when the
// session is gone.
func (c *Controller) pollStatus() bool {
	if !c.pollEnabled.Load() {
		return true
	}

	if err := c.RequestStatusReport(); err != nil {
		c.logger.Debug("status poll stopped", "error", err)
		return false
	}

	return true
}

func (c *Controller) startPolling() {
	if c.tasks.HasInterval(pollTaskName) {
		return
	}

	interval := time.Duration(c.pollInterval.Load())
	if err := c.tasks.StartInterval(pollTaskName, c.pollStatus, interval, true); err != nil {
		c.logger.Debug("status poll not started", "error", err)
	}
}

func (c *Controller) stopPolling() {
	_ = c.tasks.StopInterval(pollTaskName)
}

// SetStatusUpdatesEnabled enables or disables status polling. Polling only
// runs while a session is past its handshake.
func (c *Controller) SetStatusUpdatesEnabled(enabled bool) {
	if c.pollEnabled.Swap(enabled) == enabled {
		return
	}

	if enabled {
		c.pollOutstanding.Store(false)
	}
	c.logger.Info("status polling", "enabled", enabled)
}

// SetStatusUpdateRate changes the status poll interval. A running poll
// timer restarts with the new interval.
func (c *Controller) SetStatusUpdateRate(d time.Duration) error {
	if err := validatePollInterval(d); err != nil {
		return err
	}

	c.pollInterval.Store(int64(d))

	if !c.tasks.HasInterval(pollTaskName) {
		return nil
	}

	c.stopPolling()

	c.mu.Lock()
	state := c.status.State()
	c.mu.Unlock()

	if state != Disconnected && state != Connecting {
		c.startPolling()
	}

	return nil
}
