package config

import (
	"sort"

	"github.com/san-kum/timederiv/internal/synth"
)

var Presets = map[string]map[string]*synth.Spec{
	"linear": {
		"small": {
			Profile: synth.Linear, Var: "F", Steps: 10, Dt: 0.1,
			Nx: 8, Ny: 8, Nz: 8, Slope: 2.0,
		},
		"large": {
			Profile: synth.Linear, Var: "F", Steps: 50, Dt: 0.01,
			Nx: 64, Ny: 64, Nz: 32, Slope: 0.5,
		},
	},
	"quadratic": {
		"small": {
			Profile: synth.Quadratic, Var: "F", Steps: 10, Dt: 0.1,
			Nx: 8, Ny: 8, Nz: 8, Slope: 1.0,
		},
	},
	"wave": {
		"small": {
			Profile: synth.Wave, Var: "F", Steps: 40, Dt: 0.05,
			Nx: 16, Ny: 16, Nz: 4, Slope: 1.0, Omega: 6.283185307179586,
		},
		"fine": {
			Profile: synth.Wave, Var: "F", Steps: 200, Dt: 0.005,
			Nx: 32, Ny: 32, Nz: 16, Slope: 1.0, Omega: 6.283185307179586,
		},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(profile, preset string) *synth.Spec {
	profilePresets, ok := Presets[profile]
	if !ok {
		return nil
	}
	spec, ok := profilePresets[preset]
	if !ok {
		return nil
	}
	cp := *spec
	return &cp
}

func ListPresets(profile string) []string {
	profilePresets, ok := Presets[profile]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(profilePresets))
	for name := range profilePresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
