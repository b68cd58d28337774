package influxdb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/valvectl/internal/infrastructure/config"
)

// fakeWriter captures points instead of sending them.
type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (f *fakeWriter) WritePoint(p *write.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
}

func (f *fakeWriter) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
}

type fakePinger struct {
	healthy bool
	err     error
	closed  bool
}

func (f *fakePinger) Ping(context.Context) (bool, error) { return f.healthy, f.err }
func (f *fakePinger) Close()                            { f.closed = true }

func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "valvectl-dev-token",
		Org:           "valvectl",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func fields(p *write.Point) map[string]interface{} {
	out := make(map[string]interface{})
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func tags(p *write.Point) map[string]string {
	out := make(map[string]string)
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := Connect(cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteChannelHold(t *testing.T) {
	w := &fakeWriter{}
	c := newClient(&fakePinger{healthy: true}, w, testConfig())
	reverted := time.Date(2026, 5, 1, 7, 0, 0, 0, time.UTC)

	c.WriteChannelHold(ChannelHold{
		OperationID:  "op-1",
		Channel:      17,
		Group:        2,
		TargetActive: true,
		Requested:    10 * time.Minute,
		Held:         90 * time.Second,
		Cancelled:    true,
		RevertedAt:   reverted,
	})

	if len(w.points) != 1 {
		t.Fatalf("points = %d, want 1", len(w.points))
	}
	p := w.points[0]
	if p.Name() != MeasurementChannel {
		t.Errorf("Name() = %q, want %q", p.Name(), MeasurementChannel)
	}
	if !p.Time().Equal(reverted) {
		t.Errorf("Time() = %v, want %v", p.Time(), reverted)
	}

	gotTags := tags(p)
	if gotTags["channel"] != "17" || gotTags["group"] != "2" {
		t.Errorf("tags = %v", gotTags)
	}

	gotFields := fields(p)
	if gotFields["held_ms"] != int64(90000) {
		t.Errorf("held_ms = %v, want 90000", gotFields["held_ms"])
	}
	if gotFields["requested_ms"] != int64(600000) {
		t.Errorf("requested_ms = %v, want 600000", gotFields["requested_ms"])
	}
	if gotFields["cancelled"] != true {
		t.Errorf("cancelled = %v, want true", gotFields["cancelled"])
	}
	if gotFields["operation_id"] != "op-1" {
		t.Errorf("operation_id = %v, want op-1", gotFields["operation_id"])
	}
}

func TestWriteOperation(t *testing.T) {
	w := &fakeWriter{}
	c := newClient(&fakePinger{healthy: true}, w, testConfig())

	c.WriteOperation(OperationSummary{
		OperationID:   "op-2",
		Source:        "api",
		Status:        "stopped",
		Channels:      3,
		Groups:        2,
		GroupsSkipped: 1,
		Elapsed:       1500 * time.Millisecond,
	})

	if len(w.points) != 1 {
		t.Fatalf("points = %d, want 1", len(w.points))
	}
	p := w.points[0]
	if p.Name() != MeasurementOperation {
		t.Errorf("Name() = %q", p.Name())
	}
	if got := tags(p); got["status"] != "stopped" || got["source"] != "api" {
		t.Errorf("tags = %v", got)
	}
	if got := fields(p); got["groups_skipped"] != int64(1) || got["elapsed_ms"] != int64(1500) {
		t.Errorf("fields = %v", got)
	}
	if p.Time().IsZero() {
		t.Error("Time() is zero, want now")
	}
}

func TestWritesAfterCloseAreDropped(t *testing.T) {
	w := &fakeWriter{}
	ping := &fakePinger{healthy: true}
	c := newClient(ping, w, testConfig())

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !ping.closed {
		t.Error("underlying client not closed")
	}
	if w.flushes != 1 {
		t.Errorf("flushes = %d, want 1", w.flushes)
	}

	c.WriteChannelHold(ChannelHold{Channel: 1})
	c.WritePointWithTime("x", nil, map[string]interface{}{"v": 1}, time.Now())
	c.Flush()

	if len(w.points) != 0 {
		t.Errorf("points after Close = %d, want 0", len(w.points))
	}
	if w.flushes != 1 {
		t.Errorf("Flush after Close sent a flush")
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name    string
		pinger  *fakePinger
		closed  bool
		wantErr bool
		wantIs  error
	}{
		{name: "healthy", pinger: &fakePinger{healthy: true}},
		{name: "unhealthy", pinger: &fakePinger{healthy: false}, wantErr: true},
		{name: "ping error", pinger: &fakePinger{err: errors.New("refused")}, wantErr: true},
		{name: "closed", pinger: &fakePinger{healthy: true}, closed: true, wantErr: true, wantIs: ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(tt.pinger, &fakeWriter{}, testConfig())
			if tt.closed {
				c.Close()
			}
			err := c.HealthCheck(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("HealthCheck() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("HealthCheck() error = %v, want %v", err, tt.wantIs)
			}
		})
	}
}

func TestHandleWriteErrors(t *testing.T) {
	c := newClient(&fakePinger{healthy: true}, &fakeWriter{}, testConfig())

	var got []error
	c.SetOnError(func(err error) { got = append(got, err) })

	ch := make(chan error, 2)
	ch <- errors.New("batch rejected")
	ch <- errors.New("timeout")
	close(ch)

	c.handleWriteErrors(ch)

	if len(got) != 2 {
		t.Fatalf("callback calls = %d, want 2", len(got))
	}
	for _, err := range got {
		if !errors.Is(err, ErrWriteFailed) {
			t.Errorf("error %v does not wrap ErrWriteFailed", err)
		}
	}
}
