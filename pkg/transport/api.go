package transport

import (
	"encoding/json"

	"github.com/klvr/charger-tools/pkg/models"
)

// Charger HTTP API paths, served on port 8000 by the device itself.
const (
	PathDeviceInfo   = "/api/v2/device/info"
	PathFirmwareMain = "/api/v2/device/firmware_charger"
	PathFirmwareRear = "/api/v2/device/firmware_rear"
	PathReboot       = "/api/v2/device/reboot"
)

// DeviceInfo is the JSON the charger serves at PathDeviceInfo. Older
// firmware reports the name under "deviceName" instead of "name".
type DeviceInfo struct {
	Name            string `json:"name"`
	DeviceName      string `json:"deviceName"`
	FirmwareVersion string `json:"firmwareVersion"`
	SerialNumber    string `json:"serialNumber"`
	MacAddress      string `json:"macAddress"`
}

// DisplayName returns whichever name field the firmware populated.
func (i DeviceInfo) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.DeviceName
}

// Identifier returns a stable device identity: serial number, then MAC,
// then UnknownValue.
func (i DeviceInfo) Identifier() string {
	if i.SerialNumber != "" {
		return i.SerialNumber
	}
	if i.MacAddress != "" {
		return i.MacAddress
	}
	return models.UnknownValue
}

// ParseDeviceInfo decodes a device-info response body.
func ParseDeviceInfo(body string) (DeviceInfo, error) {
	var info DeviceInfo
	err := json.Unmarshal([]byte(body), &info)
	return info, err
}
