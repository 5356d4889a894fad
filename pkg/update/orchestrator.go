// Package update drives the charger firmware update sequence: query
// info, upload the main image, wait, reboot main, wait, upload the rear
// image, wait, reboot rear, wait, verify. The waits are fixed durations
// tuned against real hardware (the device offers no readiness endpoint
// to poll), and nothing here ever re-sends an upload or reboot call,
// because re-sending after a board has begun flashing is unsafe.
package update

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/klvr/charger-tools/pkg/config"
	"github.com/klvr/charger-tools/pkg/firmware"
	"github.com/klvr/charger-tools/pkg/models"
	"github.com/klvr/charger-tools/pkg/transport"
)

// Job carries one firmware pair through a batch. Images are loaded once
// per pair and shared read-only across every device in the batch.
type Job struct {
	Pair      models.FirmwarePair
	MainImage []byte
	RearImage []byte
	RearOnly  bool // skip the main-board states entirely
}

// Orchestrator runs the update sequence against devices, one device at
// a time. All mutable progress lives on the instance, constructed fresh
// per invocation.
type Orchestrator struct {
	cfg    config.Config
	client *transport.Client // info queries, verify-length timeout
	upload *transport.Client // firmware posts, upload-length timeout
	logger *logrus.Logger

	sleep func(context.Context, time.Duration) error
	trace []State
}

// NewOrchestrator creates an orchestrator around the given transport
func NewOrchestrator(cfg config.Config, client *transport.Client, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Orchestrator{
		cfg:    cfg,
		client: client,
		upload: client.WithTimeout(cfg.UploadTimeout),
		logger: logger,
		sleep:  sleepContext,
	}
}

// Trace returns the states reached during the most recent Update call,
// in order.
func (o *Orchestrator) Trace() []State {
	return o.trace
}

// UpdateAll updates each device in turn, fully finishing one (success
// or failure) before starting the next, with a cooldown in between so
// reboot cycles never overlap on the network segment. One device's
// failure never stops the batch. The firmware images are read once, up
// front; an unreadable pair aborts before any device is touched.
func (o *Orchestrator) UpdateAll(ctx context.Context, devices []models.DeviceDescriptor, pair models.FirmwarePair, rearOnly bool) ([]models.UpdateResult, error) {
	mainImage, rearImage, err := firmware.LoadImages(pair)
	if err != nil {
		return nil, fmt.Errorf("firmware file read failed: %w", err)
	}
	job := Job{Pair: pair, MainImage: mainImage, RearImage: rearImage, RearOnly: rearOnly}

	results := make([]models.UpdateResult, 0, len(devices))
	for i, device := range devices {
		if i > 0 {
			o.logger.Infof("Cooling down %s before the next device", o.cfg.DeviceCooldown)
			if err := o.sleep(ctx, o.cfg.DeviceCooldown); err != nil {
				return results, err
			}
		}
		results = append(results, o.Update(ctx, device, job))
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
	}
	return results, nil
}

// Update runs the full sequence against one device and always returns
// a result; per-device failures are data, not propagated errors.
func (o *Orchestrator) Update(ctx context.Context, device models.DeviceDescriptor, job Job) models.UpdateResult {
	o.trace = []State{StateIdle}

	result := models.UpdateResult{
		Device:          device.ID,
		PreviousVersion: models.UnknownValue,
		NewVersion:      models.UnknownValue,
		TargetVersion:   job.Pair.Version,
	}
	if result.Device == "" {
		result.Device = device.Host
	}

	o.logger.Infof("Updating %s to v%s", device, job.Pair.Version)

	// Step 1: baseline info query. Without it there is no before
	// version and no evidence the device is reachable, so failure
	// here is fatal.
	resp, err := o.client.Do(ctx, device, http.MethodGet, transport.PathDeviceInfo, nil, nil)
	if err != nil {
		return o.fail(result, fmt.Sprintf("info query failed: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return o.fail(result, fmt.Sprintf("info query failed: status %d", resp.StatusCode))
	}
	if info, err := transport.ParseDeviceInfo(resp.Body); err == nil {
		result.PreviousVersion = info.FirmwareVersion
		if result.Device == device.Host && info.Identifier() != models.UnknownValue {
			result.Device = info.Identifier()
		}
	}
	o.enter(StateInfoQueried)

	// Step 2: firmware bytes. Batch callers preload; a direct caller
	// gets the same fatal semantics if a file went away.
	if (job.MainImage == nil && !job.RearOnly) || job.RearImage == nil {
		mainImage, rearImage, err := firmware.LoadImages(job.Pair)
		if err != nil {
			return o.fail(result, fmt.Sprintf("firmware file read failed: %v", err))
		}
		job.MainImage, job.RearImage = mainImage, rearImage
	}

	if !job.RearOnly {
		// Steps 3-6: the main board first. It sits furthest down the
		// update chain and must hold new code before the rear board's
		// reboot cycle begins, or the boards end up inconsistent.
		if err := o.post(ctx, o.upload, device, transport.PathFirmwareMain, job.MainImage); err != nil {
			return o.fail(result, fmt.Sprintf("main firmware upload: %v", err))
		}
		o.enter(StateMainUploaded)

		o.logger.Infof("Waiting %s for the main board to write flash", o.cfg.FirmwareProcessingWait)
		if err := o.sleep(ctx, o.cfg.FirmwareProcessingWait); err != nil {
			return o.interrupted(result)
		}
		o.enter(StateMainProcessed)

		if err := o.reboot(ctx, device, firmware.BoardMain); err != nil {
			return o.fail(result, fmt.Sprintf("main board reboot: %v", err))
		}
		o.enter(StateMainRebooted)

		// The device's network stack needs a moment to resume after
		// the main board signals its own restart.
		if err := o.sleep(ctx, o.cfg.RebootPropagationWait); err != nil {
			return o.interrupted(result)
		}
	}
	o.enter(StateRearUploadStarted)

	// Steps 7-10: rear board.
	if err := o.post(ctx, o.upload, device, transport.PathFirmwareRear, job.RearImage); err != nil {
		return o.fail(result, fmt.Sprintf("rear firmware upload: %v", err))
	}
	o.enter(StateRearUploaded)

	o.logger.Infof("Waiting %s for the rear board to write flash", o.cfg.FirmwareProcessingWait)
	if err := o.sleep(ctx, o.cfg.FirmwareProcessingWait); err != nil {
		return o.interrupted(result)
	}
	o.enter(StateRearProcessed)

	if err := o.reboot(ctx, device, firmware.BoardRear); err != nil {
		return o.fail(result, fmt.Sprintf("rear board reboot: %v", err))
	}
	o.enter(StateRearRebooted)

	o.logger.Infof("Waiting %s for the rear board to restart", o.cfg.RearRebootWait)
	if err := o.sleep(ctx, o.cfg.RearRebootWait); err != nil {
		return o.interrupted(result)
	}
	o.enter(StateVerified)

	// Step 11: best-effort confirmation. Completing the sequence is
	// the success criterion; a device still mid-restart here does not
	// turn a good update into a failure.
	result.Success = true
	result.NewVersion = job.Pair.Version
	if resp, err := o.client.Do(ctx, device, http.MethodGet, transport.PathDeviceInfo, nil, nil); err == nil && resp.StatusCode == http.StatusOK {
		if info, err := transport.ParseDeviceInfo(resp.Body); err == nil && info.FirmwareVersion != "" {
			result.NewVersion = info.FirmwareVersion
		}
	} else {
		o.logger.Infof("Device %s not answering yet, assuming v%s on next boot", device, job.Pair.Version)
	}
	o.enter(StateSucceeded)

	return result
}

// post sends a firmware image and treats every non-2xx as a rejection.
func (o *Orchestrator) post(ctx context.Context, client *transport.Client, device models.DeviceDescriptor, path string, image []byte) error {
	headers := map[string]string{"Content-Type": "application/octet-stream"}
	resp, err := client.Do(ctx, device, http.MethodPost, path, image, headers)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UploadRejectedError{Endpoint: path, StatusCode: resp.StatusCode}
	}
	return nil
}

// reboot asks one board to restart. The body is the literal board name;
// a 200 does not strictly guarantee the reboot happened over every
// tunnel transport, but it is the only confirmation the device offers.
func (o *Orchestrator) reboot(ctx context.Context, device models.DeviceDescriptor, board string) error {
	path := transport.PathReboot + "?board=" + board
	resp, err := o.client.Do(ctx, device, http.MethodPost, path, []byte(board), nil)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UploadRejectedError{Endpoint: path, StatusCode: resp.StatusCode}
	}
	return nil
}

func (o *Orchestrator) enter(s State) {
	o.trace = append(o.trace, s)
}

func (o *Orchestrator) fail(result models.UpdateResult, reason string) models.UpdateResult {
	o.enter(StateFailed)
	result.Success = false
	result.FailureReason = reason
	o.logger.Errorf("Update of %s failed: %s", result.Device, reason)
	return result
}

// interrupted handles cancellation mid-sequence. There is no rollback
// for a flash write, so the only honest report is that the device may
// be inconsistent; nothing attempts to resume automatically.
func (o *Orchestrator) interrupted(result models.UpdateResult) models.UpdateResult {
	return o.fail(result, "interrupted mid-update; device may be in an inconsistent state")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
