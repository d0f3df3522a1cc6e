package wxdata

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ByeMarker is the literal termination payload the server sends on shutdown
const ByeMarker = "!bye"

// Encode serializes a snapshot or ad-hoc response for the wire
func Encode(s *Snapshot) ([]byte, error) {
	data, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("msgpack encode: %w", err)
	}
	return data, nil
}

// EncodeBye serializes the termination marker
func EncodeBye() ([]byte, error) {
	data, err := msgpack.Marshal(ByeMarker)
	if err != nil {
		return nil, fmt.Errorf("msgpack encode: %w", err)
	}
	return data, nil
}

// Decode parses a wire payload. It returns bye=true for the termination
// marker, otherwise the decoded snapshot/ad-hoc response.
func Decode(data []byte) (snap *Snapshot, bye bool, err error) {
	if len(data) == 0 {
		return nil, false, fmt.Errorf("empty payload")
	}

	// The termination marker is a bare msgpack string; snapshots are maps.
	if isMsgpackString(data[0]) {
		var s string
		if err := msgpack.Unmarshal(data, &s); err != nil {
			return nil, false, fmt.Errorf("msgpack decode marker: %w", err)
		}
		if s == ByeMarker {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("unexpected string payload %q", s)
	}

	var s Snapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, false, fmt.Errorf("msgpack decode snapshot: %w", err)
	}
	return &s, false, nil
}

func isMsgpackString(b byte) bool {
	return (b >= 0xa0 && b <= 0xbf) || b == 0xd9 || b == 0xda || b == 0xdb
}
