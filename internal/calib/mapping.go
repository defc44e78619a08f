package calib

import "math"

// AxisRole names the kinematic quantity stored along a table axis.
type AxisRole int

const (
	RoleEta AxisRole = iota
	RolePt
)

func (r AxisRole) String() string {
	switch r {
	case RoleEta:
		return "eta"
	case RolePt:
		return "pt"
	default:
		return "unknown"
	}
}

// AxisMapping fixes how a lepton's (eta, pt) is fed into a table.
type AxisMapping struct {
	// XRole is the quantity on the X axis; Y holds the other one.
	XRole AxisRole
	// FoldToAbsolute replaces eta by |eta| before the lookup.
	FoldToAbsolute bool
	// CollapsedY treats Y as one bin spanning any value (1-D sources).
	CollapsedY bool
}

// EtaX is the layout of every lepton table in use: eta on X, pt on Y.
func EtaX(fold bool) AxisMapping {
	return AxisMapping{XRole: RoleEta, FoldToAbsolute: fold}
}

func (m AxisMapping) YRole() AxisRole {
	if m.XRole == RoleEta {
		return RolePt
	}
	return RoleEta
}

// Coordinates maps (eta, pt) onto table (x, y), folding eta if configured.
func (m AxisMapping) Coordinates(eta, pt float64) (x, y float64) {
	if m.FoldToAbsolute {
		eta = math.Abs(eta)
	}
	if m.XRole == RoleEta {
		return eta, pt
	}
	return pt, eta
}
