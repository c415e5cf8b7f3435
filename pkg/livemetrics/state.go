// Copyright Livetel, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package livemetrics // import "github.com/livetel/livemetrics/pkg/livemetrics"

// CollectionState is the backend handshake state for live collection.
// Recording only does real work in StatePost; in every other state the
// instruments and pipeline stay constructed but the recording path is a no-op.
type CollectionState int32

const (
	// StateOffline means no backend has acknowledged this process yet.
	StateOffline CollectionState = iota
	// StatePingShort means the backend is reachable and being pinged, but has
	// not requested detailed collection.
	StatePingShort
	// StatePost means the backend requested detailed collection; spans and
	// log records are aggregated and documents are captured.
	StatePost
)

func (s CollectionState) String() string {
	switch s {
	case StateOffline:
		return "offline"
	case StatePingShort:
		return "ping"
	case StatePost:
		return "post"
	default:
		return "unknown"
	}
}
