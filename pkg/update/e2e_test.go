package update

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/klvr/charger-tools/pkg/config"
	"github.com/klvr/charger-tools/pkg/discovery"
	"github.com/klvr/charger-tools/pkg/models"
	"github.com/klvr/charger-tools/pkg/simulator"
	"github.com/klvr/charger-tools/pkg/transport"
)

// TestUpdateAgainstSimulator runs the whole flow (verify, upload both
// boards, reboot both boards, confirm the new version) against the
// device simulator instead of mocked handlers.
func TestUpdateAgainstSimulator(t *testing.T) {
	sim := simulator.New(simulator.Options{
		Name:            "KLVR Charger Pro (bench)",
		SerialNumber:    "KC-SIM-1",
		FirmwareVersion: "1.7.0",
		NextVersion:     "1.8.3",
	}, nil)
	srv := httptest.NewServer(sim.Router())
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	candidate := models.DeviceDescriptor{Host: u.Hostname(), Port: port, Scheme: "http"}

	cfg := config.DefaultConfig()
	client := transport.NewClient(2*time.Second, nil)

	locator := discovery.NewLocator(cfg, client, nil)
	device, ok := locator.Verify(context.Background(), candidate)
	if !ok {
		t.Fatal("simulator did not verify as a charger")
	}
	if device.ID != "KC-SIM-1" {
		t.Errorf("device id = %q", device.ID)
	}

	o := NewOrchestrator(cfg, client, nil)
	o.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	dir := t.TempDir()
	pair := writePair(t, dir, "1.8.3")

	results, err := o.UpdateAll(context.Background(), []models.DeviceDescriptor{device}, pair, false)
	if err != nil {
		t.Fatalf("UpdateAll: %v", err)
	}
	result := results[0]
	if !result.Success {
		t.Fatalf("update failed: %s", result.FailureReason)
	}
	if result.PreviousVersion != "1.7.0" || result.NewVersion != "1.8.3" {
		t.Errorf("versions %s -> %s, want 1.7.0 -> 1.8.3", result.PreviousVersion, result.NewVersion)
	}

	mainBytes, rearBytes := sim.UploadedBytes()
	if mainBytes != len("main-image") || rearBytes != len("rear-image") {
		t.Errorf("simulator received %d/%d bytes", mainBytes, rearBytes)
	}
	if sim.Reboots("main") != 1 || sim.Reboots("rear") != 1 {
		t.Errorf("reboots main=%d rear=%d, want 1/1", sim.Reboots("main"), sim.Reboots("rear"))
	}
}
