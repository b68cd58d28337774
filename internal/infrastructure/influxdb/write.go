package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by valvectl.
const (
	MeasurementChannel   = "valve_channel"
	MeasurementOperation = "valve_operation"
)

// ChannelHold describes one completed activate/hold/revert cycle.
type ChannelHold struct {
	OperationID  string
	Channel      int
	Group        int
	TargetActive bool
	Requested    time.Duration
	Held         time.Duration
	Cancelled    bool
	Failed       bool
	RevertedAt   time.Time
}

// WriteChannelHold records how long a channel was held.
//
// Tags are channel and group (low cardinality). The operation ID is a field
// so it does not create a series per run.
//
// Example:
//
//	client.WriteChannelHold(influxdb.ChannelHold{Channel: 17, Group: 1, Held: 5 * time.Minute})
func (c *Client) WriteChannelHold(h ChannelHold) {
	if !c.IsConnected() {
		return
	}

	ts := h.RevertedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	point := write.NewPoint(
		MeasurementChannel,
		map[string]string{
			"channel": strconv.Itoa(h.Channel),
			"group":   strconv.Itoa(h.Group),
		},
		map[string]interface{}{
			"operation_id":  h.OperationID,
			"target_active": h.TargetActive,
			"requested_ms":  h.Requested.Milliseconds(),
			"held_ms":       h.Held.Milliseconds(),
			"cancelled":     h.Cancelled,
			"failed":        h.Failed,
		},
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// OperationSummary describes a finished operation.
type OperationSummary struct {
	OperationID   string
	Source        string
	Status        string
	Channels      int
	Groups        int
	GroupsSkipped int
	Elapsed       time.Duration
	FinishedAt    time.Time
}

// WriteOperation records one finished operation.
func (c *Client) WriteOperation(s OperationSummary) {
	if !c.IsConnected() {
		return
	}

	ts := s.FinishedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	point := write.NewPoint(
		MeasurementOperation,
		map[string]string{
			"source": s.Source,
			"status": s.Status,
		},
		map[string]interface{}{
			"operation_id":   s.OperationID,
			"channels":       s.Channels,
			"groups":         s.Groups,
			"groups_skipped": s.GroupsSkipped,
			"elapsed_ms":     s.Elapsed.Milliseconds(),
		},
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
