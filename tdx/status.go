package tdx

import "os"

// Status describes which quote sources are present on this machine.
type Status struct {
	Available       bool     `json:"available"`
	TSMPath         string   `json:"tsm_path"`
	TSMAvailable    bool     `json:"tsm_available"`
	GuestDevice     bool     `json:"tdx_guest_device"`
	LibTDXAttest    bool     `json:"libtdx_attest"`
	Device          *string  `json:"device"`
	TSMContents     []string `json:"tsm_contents,omitempty"`
	TSMError        string   `json:"tsm_error,omitempty"`
	LibraryPath     string   `json:"library_path"`
	GuestDevicePath string   `json:"guest_device_path"`
}

// GetStatus probes the given paths. It only checks for existence.
func GetStatus(paths Paths) Status {
	status := Status{
		TSMPath:         paths.TSMReport,
		TSMAvailable:    pathExists(paths.TSMReport),
		GuestDevice:     pathExists(paths.GuestDevice),
		LibTDXAttest:    pathExists(paths.Library),
		LibraryPath:     paths.Library,
		GuestDevicePath: paths.GuestDevice,
	}
	status.Available = status.TSMAvailable || status.LibTDXAttest
	if status.GuestDevice {
		device := paths.GuestDevice
		status.Device = &device
	}

	if status.TSMAvailable {
		entries, err := os.ReadDir(paths.TSMReport)
		if err != nil {
			status.TSMError = err.Error()
			return status
		}
		status.TSMContents = make([]string, 0, len(entries))
		for _, entry := range entries {
			status.TSMContents = append(status.TSMContents, entry.Name())
		}
	}
	return status
}
