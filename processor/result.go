package processor

import "packscan/config"

// Status classifies the outcome of one scanned code.
type Status int

const (
	StatusEmpty Status = iota
	StatusPackerSelected
	StatusPackerNotFound
	StatusSessionError
	StatusNoPacker
	StatusSaved
	StatusSnapshotFailed
	StatusSaveFailed
)

var statusNames = map[Status]string{
	StatusEmpty:          "empty",
	StatusPackerSelected: "packer_selected",
	StatusPackerNotFound: "packer_not_found",
	StatusSessionError:   "session_error",
	StatusNoPacker:       "no_packer",
	StatusSaved:          "saved",
	StatusSnapshotFailed: "snapshot_failed",
	StatusSaveFailed:     "save_failed",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// OK reports whether the scan did what the operator intended.
func (s Status) OK() bool {
	return s == StatusPackerSelected || s == StatusSaved
}

// Result is returned for every scanned code.
type Result struct {
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Code    string         `json:"code,omitempty"`
	Packer  *config.Packer `json:"packer,omitempty"`
	Photo   string         `json:"photo,omitempty"`
	Source  string         `json:"source,omitempty"`
}

// State is a point-in-time view of the processor.
type State struct {
	Packer    *config.Packer `json:"packer,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Folder    string         `json:"folder,omitempty"`
	Scans     int            `json:"scans"`
	Station   string         `json:"station"`
	Source    string         `json:"source"`
}
