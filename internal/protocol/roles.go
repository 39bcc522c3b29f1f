package protocol

import "fmt"

// NetworkRole identifies which member owns the session's registry duties
type NetworkRole uint8

const (
	NoNetworkRole NetworkRole = iota
	Host
	Guest
)

func (r NetworkRole) String() string {
	switch r {
	case Host:
		return "host"
	case Guest:
		return "guest"
	default:
		return ""
	}
}

// Other returns the opposite network role
func (r NetworkRole) Other() NetworkRole {
	switch r {
	case Host:
		return Guest
	case Guest:
		return Host
	default:
		return NoNetworkRole
	}
}

func (r NetworkRole) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *NetworkRole) UnmarshalText(b []byte) error {
	switch string(b) {
	case "host":
		*r = Host
	case "guest":
		*r = Guest
	case "":
		*r = NoNetworkRole
	default:
		return fmt.Errorf("unknown network role %q", b)
	}
	return nil
}
