package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/sys/unix"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	t.Run("with valid config", func(t *testing.T) {
		config := &Config{
			Enabled:   true,
			Port:      9090,
			Path:      "/metrics",
			Namespace: "agentfs",
			Subsystem: "test",
		}
		collector, err := NewCollector(config)
		if err != nil {
			t.Fatalf("NewCollector() error = %v, want nil", err)
		}
		if collector.config != config {
			t.Error("collector.config does not match input config")
		}
		if collector.Registry() == nil {
			t.Error("collector registry is nil")
		}
		if collector.operations == nil {
			t.Error("collector.operations map is nil")
		}
	})

	t.Run("with nil config uses defaults", func(t *testing.T) {
		collector, err := NewCollector(nil)
		if err != nil {
			t.Fatalf("NewCollector(nil) error = %v, want nil", err)
		}
		if collector.config.Path != "/metrics" {
			t.Errorf("default path = %q, want %q", collector.config.Path, "/metrics")
		}
		if collector.config.Namespace != "agentfs" {
			t.Errorf("default namespace = %q, want %q", collector.config.Namespace, "agentfs")
		}
		if collector.config.Subsystem != "bridge" {
			t.Errorf("default subsystem = %q, want %q", collector.config.Subsystem, "bridge")
		}
	})

	t.Run("collectors are independent", func(t *testing.T) {
		a, _ := NewCollector(nil)
		b, _ := NewCollector(nil)
		a.HandleOpened()
		if got := testutil.ToFloat64(b.openHandles); got != 0 {
			t.Errorf("second collector saw open handles = %v", got)
		}
	})
}

func TestRecordOperation(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(nil)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	collector.RecordOperation("pread", 2*time.Millisecond, 4096, 0)
	collector.RecordOperation("pread", 4*time.Millisecond, 1024, 0)
	collector.RecordOperation("stat", time.Millisecond, 0, int32(unix.ENOENT))

	tests := []struct {
		name  string
		value float64
		want  float64
	}{
		{"pread successes", testutil.ToFloat64(collector.operationCounter.WithLabelValues("pread", "success")), 2},
		{"stat errors", testutil.ToFloat64(collector.operationCounter.WithLabelValues("stat", "error")), 1},
		{"pread bytes", testutil.ToFloat64(collector.bytesCounter.WithLabelValues("pread")), 5120},
		{"stat errno", testutil.ToFloat64(collector.errorCounter.WithLabelValues("stat", "ENOENT")), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != tt.want {
				t.Errorf("got %v, want %v", tt.value, tt.want)
			}
		})
	}

	snapshot := collector.GetMetrics()
	pread := snapshot["pread"]
	if pread.Count != 2 || pread.TotalSize != 5120 {
		t.Errorf("unexpected pread snapshot: %+v", pread)
	}
	if pread.AvgDuration != 3*time.Millisecond {
		t.Errorf("avg duration = %v, want 3ms", pread.AvgDuration)
	}
	if snapshot["stat"].Errors != 1 {
		t.Errorf("stat errors = %d, want 1", snapshot["stat"].Errors)
	}

	collector.ResetMetrics()
	if len(collector.GetMetrics()) != 0 {
		t.Error("ResetMetrics should clear operation snapshot")
	}
}

func TestOpenHandlesGauge(t *testing.T) {
	t.Parallel()

	collector, _ := NewCollector(nil)
	collector.HandleOpened()
	collector.HandleOpened()
	collector.HandleClosed()

	if got := testutil.ToFloat64(collector.openHandles); got != 1 {
		t.Errorf("open handles = %v, want 1", got)
	}
}

func TestMetricNames(t *testing.T) {
	t.Parallel()

	collector, _ := NewCollector(nil)
	collector.RecordOperation("readdir", time.Millisecond, 10, int32(unix.ENOTDIR))
	collector.HandleOpened()

	expected := `
# HELP agentfs_bridge_errors_total Total number of failed bridge operations by errno
# TYPE agentfs_bridge_errors_total counter
agentfs_bridge_errors_total{errno="ENOTDIR",operation="readdir"} 1
`
	if err := testutil.GatherAndCompare(collector.Registry(), strings.NewReader(expected),
		"agentfs_bridge_errors_total"); err != nil {
		t.Error(err)
	}

	count, err := testutil.GatherAndCount(collector.Registry(),
		"agentfs_bridge_operations_total",
		"agentfs_bridge_operation_duration_seconds",
		"agentfs_bridge_bytes_total",
		"agentfs_bridge_open_handles")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if count != 4 {
		t.Errorf("metric series = %d, want 4", count)
	}
}

func TestErrnoLabel(t *testing.T) {
	t.Parallel()

	if got := errnoLabel(int32(unix.EIO)); got != "EIO" {
		t.Errorf("errnoLabel(EIO) = %q", got)
	}
	if got := errnoLabel(99999); got != "errno_99999" {
		t.Errorf("errnoLabel(99999) = %q", got)
	}
}

func TestStartDisabled(t *testing.T) {
	t.Parallel()

	collector, _ := NewCollector(&Config{Enabled: false, Port: 9999})
	if err := collector.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if collector.server != nil {
		t.Error("disabled collector should not start a server")
	}
	if err := collector.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestHandlers(t *testing.T) {
	t.Parallel()

	collector, _ := NewCollector(nil)
	collector.RecordOperation("mkdir", time.Millisecond, 0, 0)

	rec := httptest.NewRecorder()
	collector.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("health handler returned %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	collector.debugOperationsHandler(rec, httptest.NewRequest(http.MethodGet, "/debug/operations", nil))
	if !strings.Contains(rec.Body.String(), `"mkdir"`) {
		t.Errorf("debug handler missing operation: %q", rec.Body.String())
	}
}
