package melsec

import (
	_ "embed"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed devices.yaml
var embeddedDevicesYAML []byte

// DefaultDeviceCatalog parses and returns the embedded baseline device
// catalog.
func DefaultDeviceCatalog() (*DeviceCatalog, error) {
	var doc deviceDoc
	if err := yaml.Unmarshal(embeddedDevicesYAML, &doc); err != nil {
		return nil, wrapErr(KindProtocol, err, "parsing embedded device catalog")
	}
	return parseDeviceDoc(doc.Devices)
}

var (
	globalDevicesMu sync.RWMutex
	globalDevices   *DeviceCatalog
)

// SetGlobalDeviceCatalog installs cat as the process-wide device catalog.
// A second call returns ErrAlreadyRegistered (§3 Lifecycles): the device
// catalog, like the command registry, is single-set for the life of the
// process.
func SetGlobalDeviceCatalog(cat *DeviceCatalog) error {
	globalDevicesMu.Lock()
	defer globalDevicesMu.Unlock()
	if globalDevices != nil {
		return ErrAlreadyRegistered
	}
	globalDevices = cat
	return nil
}

// GlobalDeviceCatalog returns the process-wide device catalog, or nil if
// none has been set.
func GlobalDeviceCatalog() *DeviceCatalog {
	globalDevicesMu.RLock()
	defer globalDevicesMu.RUnlock()
	return globalDevices
}

func resetGlobalDeviceCatalogForTest() {
	globalDevicesMu.Lock()
	defer globalDevicesMu.Unlock()
	globalDevices = nil
}
