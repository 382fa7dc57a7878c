package audio

import (
	"fmt"
)

// UnknownDeviceName stands in for devices whose name query fails.
const UnknownDeviceName = "Unknown Device"

// DeviceRegistry maps display names to live device handles. Identity is by
// name only: two devices reporting the same name are indistinguishable and
// the first one enumerated wins.
//
// The registry is owned by the capture goroutine and is not safe for
// concurrent use.
type DeviceRegistry struct {
	handles     map[string]DeviceHandle
	order       []string
	defaultName string
	selected    string
	// preferred is the device asked for by name. It stays wanted while
	// unplugged and is reselected when a refresh sees it again.
	preferred   string
	populated   bool
}

// NewDeviceRegistry returns an empty registry that selects the named device
// whenever a refresh finds it. An empty name means the default.
func NewDeviceRegistry(preferred string) *DeviceRegistry {
	return &DeviceRegistry{
		handles:   map[string]DeviceHandle{},
		selected:  preferred,
		preferred: preferred,
	}
}

// Refresh rebuilds the registry from b. A selection that vanished falls back
// to the platform default; if the default cannot be resolved the first
// enumerated device is used. A preferred device that reappears is selected
// again.
func (r *DeviceRegistry) Refresh(b Backend) ([]Device, error) {
	handles, err := b.InputDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate input devices: %w", err)
	}

	byName := make(map[string]DeviceHandle, len(handles))
	order := make([]string, 0, len(handles))
	for _, h := range handles {
		name, err := h.Name()
		if err != nil || name == "" {
			name = UnknownDeviceName
		}
		if _, dup := byName[name]; dup {
			continue
		}
		byName[name] = h
		order = append(order, name)
	}

	r.handles = byName
	r.order = order
	r.populated = true

	if len(order) == 0 {
		r.defaultName = ""
		return nil, ErrNoDevices
	}

	def, err := b.DefaultInputName()
	if _, ok := byName[def]; err != nil || !ok {
		def = order[0]
	}
	r.defaultName = def

	if _, ok := byName[r.preferred]; ok {
		r.selected = r.preferred
	} else if _, ok := byName[r.selected]; !ok {
		r.selected = def
	}
	return r.Devices(), nil
}

// Populated reports whether Refresh has run at least once.
func (r *DeviceRegistry) Populated() bool { return r.populated }

// Select makes name the device used by the next session and the preferred
// device from then on.
func (r *DeviceRegistry) Select(name string) error {
	if _, ok := r.handles[name]; !ok {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
	}
	r.selected = name
	r.preferred = name
	return nil
}

// Selected returns the selected device name, which may be stale until the
// next Refresh.
func (r *DeviceRegistry) Selected() string { return r.selected }

// Default returns the platform default device name seen by the last Refresh.
func (r *DeviceRegistry) Default() string { return r.defaultName }

// Current resolves the selected device, falling back to the default.
func (r *DeviceRegistry) Current() (DeviceHandle, string, error) {
	if h, ok := r.handles[r.selected]; ok {
		return h, r.selected, nil
	}
	if h, ok := r.handles[r.defaultName]; ok {
		return h, r.defaultName, nil
	}
	return nil, "", ErrNoDevices
}

// Devices lists the registry in enumeration order.
func (r *DeviceRegistry) Devices() []Device {
	out := make([]Device, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, Device{
			Name:     name,
			Default:  name == r.defaultName,
			Selected: name == r.selected,
		})
	}
	return out
}
