package beacon

import (
	"fmt"
	"time"
)

// Test-only surface. These accessors wait for the dispatcher to drain
// before reading, so they observe settled state even outside testing
// mode. Unlike the recording path they return hard errors: a missing
// value in a test is an instrumentation bug worth failing on.

// TestGetValue returns the stored value for a metric in one ping store
// (empty store means the metric's first subscribed ping).
func (c *Client) TestGetValue(m MetricConfig, store string) (Value, error) {
	c.dispatcher.BlockOnQueue()
	return c.store.TestGetValue(m, store)
}

// TestGetLabeledValue returns the value for one label of a labeled
// metric.
func (c *Client) TestGetLabeledValue(m MetricConfig, label, store string) (Value, error) {
	c.dispatcher.BlockOnQueue()
	return c.store.TestGetLabeledValue(m, label, store)
}

// TestHasValue reports whether a metric holds a value. Never errors;
// disabled metrics simply report false.
func (c *Client) TestHasValue(m MetricConfig, store string) bool {
	c.dispatcher.BlockOnQueue()
	return c.store.TestHasValue(m, store)
}

// TestGetNumRecordedErrors returns the count of one error type
// recorded against a metric.
func (c *Client) TestGetNumRecordedErrors(m MetricConfig, errType ErrorType, store string) (uint64, error) {
	c.dispatcher.BlockOnQueue()
	return c.store.TestGetNumRecordedErrors(m, errType, store)
}

// TestHasPing reports whether a ping name is registered.
func (c *Client) TestHasPing(name string) bool {
	_, ok := c.registry.Lookup(name)
	return ok
}

// TestReset tears down all telemetry state and reconstructs the client
// identity deterministically: stored values, buffered events, pending
// uploads, sequence counters and client state are wiped, then a fresh
// client ID and first-run date are created. The registry keeps its
// registrations; re-registering pings after a reset is not required.
func (c *Client) TestReset() error {
	c.dispatcher.BlockOnQueue()

	c.store.ClearAll()
	if err := c.queue.Clear(); err != nil {
		return err
	}
	for _, name := range []string{"clear-ping-sequences", "clear-client-state"} {
		if _, err := c.queries.Exec(name); err != nil {
			return fmt.Errorf("failed to reset state (%s): %w", name, err)
		}
	}

	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.firstRun = false
	c.firstRunDate = ""
	c.clientID = ""
	c.timespans = make(map[string]time.Time)
	if err := c.loadClientState(); err != nil {
		return err
	}
	return nil
}

// TestClientID exposes the persisted client identifier.
func (c *Client) TestClientID() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return string(c.clientID)
}
