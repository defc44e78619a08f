// Package calib holds binned lepton scale-factor tables and the lookups the
// weight producers run against them.
//
// Cells, edges and shifts are stored and combined as float64. Calibration
// files historically read into single precision, so weights computed here can
// differ from older float32 outputs in the last float32 digits (around 1e-7
// relative). Comparisons against those outputs need a tolerance.
package calib
