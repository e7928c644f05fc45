package record

import "time"

// RemoteRecord is one entity observed on the remote service. Key is the
// stable identity used for reconciliation (serial number, directory object
// id); ID is the remote resource id used to address the entity in API calls.
// The two are often but not always equal.
type RemoteRecord struct {
	Key     string
	ID      string
	Attrs   map[string]string
	ETag    string
	Created time.Time
}

// DesiredRecord is one row of caller intent, parsed from CSV. Immutable
// after load.
type DesiredRecord struct {
	Key   string
	Attrs map[string]string
}

// AttrsEqual reports whether every desired attribute matches the remote
// value. Remote attributes absent from desired are ignored, the caller only
// manages the fields it names.
func AttrsEqual(desired DesiredRecord, remote RemoteRecord) bool {
	for k, v := range desired.Attrs {
		if remote.Attrs[k] != v {
			return false
		}
	}
	return true
}
