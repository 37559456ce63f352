package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RemoteSentinel fills every slot of a remote LocationPoint on the wire
const RemoteSentinel = "remote"

// LocationPoint is one resolved sub-location of a record. On the wire it is a
// three element array: [latitude, longitude, display_address], or
// ["remote", "remote", "remote"] for remote positions.
type LocationPoint struct {
	Remote    bool
	Latitude  float64
	Longitude float64
	Address   string
}

// RemotePoint is the sentinel point for remote positions
var RemotePoint = LocationPoint{Remote: true}

func (p LocationPoint) MarshalJSON() ([]byte, error) {
	if p.Remote {
		return json.Marshal([3]string{RemoteSentinel, RemoteSentinel, RemoteSentinel})
	}
	return json.Marshal([3]any{p.Latitude, p.Longitude, p.Address})
}

func (p *LocationPoint) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("location point: %w", err)
	}
	if len(parts) != 3 {
		return fmt.Errorf("location point: expected 3 elements, got %d", len(parts))
	}

	if bytes.HasPrefix(bytes.TrimSpace(parts[0]), []byte(`"`)) {
		var first string
		if err := json.Unmarshal(parts[0], &first); err != nil {
			return fmt.Errorf("location point latitude: %w", err)
		}
		if first != RemoteSentinel {
			return fmt.Errorf("location point: unexpected latitude %q", first)
		}
		*p = RemotePoint
		return nil
	}

	var point LocationPoint
	if err := json.Unmarshal(parts[0], &point.Latitude); err != nil {
		return fmt.Errorf("location point latitude: %w", err)
	}
	if err := json.Unmarshal(parts[1], &point.Longitude); err != nil {
		return fmt.Errorf("location point longitude: %w", err)
	}
	if err := json.Unmarshal(parts[2], &point.Address); err != nil {
		return fmt.Errorf("location point address: %w", err)
	}
	*p = point
	return nil
}
