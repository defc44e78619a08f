package rbac

const (
	RoleAdmin   = "admin"
	RoleAnalyst = "analyst"
)

const (
	PermWeightsCompute     = "weights:compute"
	PermCalibrationsRead   = "calibrations:read"
	PermCalibrationsWrite  = "calibrations:write"
	PermCalibrationsImport = "calibrations:import"
)

// RolePermissions is the default policy. Analysts compute weights and read
// calibration files; only admins publish them.
var RolePermissions = map[string][]string{
	RoleAnalyst: {
		PermWeightsCompute,
		PermCalibrationsRead,
	},
	RoleAdmin: {"*"},
}
