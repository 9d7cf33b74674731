// Package cosmo supplies the scalar flat-LCDM quantities the halo finder
// needs for its hubble-flow correction. It is not a general cosmology
// library.
package cosmo

import (
	"fmt"
	"math"
)

// FlatLCDM is a flat Lambda-CDM cosmology parameterized the way parameter
// files specify it.
type FlatLCDM struct {
	H0    float64 // Hubble constant in km/s/Mpc
	Om0   float64 // Matter density at z = 0
	Ob0   float64 // Baryon density at z = 0
	Tcmb0 float64 // CMB temperature at z = 0 in K
}

// New returns a FlatLCDM after checking the parameters describe a physical
// flat cosmology.
func New(h0, om0, ob0, tcmb0 float64) (*FlatLCDM, error) {
	if h0 <= 0 {
		return nil, fmt.Errorf("cosmo: H0 must be positive, got %g", h0)
	}
	if om0 <= 0 || om0 > 1 {
		return nil, fmt.Errorf("cosmo: Om0 must be in (0, 1], got %g", om0)
	}
	if ob0 < 0 || ob0 > om0 {
		return nil, fmt.Errorf(
			"cosmo: Ob0 must be in [0, Om0 = %g], got %g", om0, ob0,
		)
	}
	return &FlatLCDM{H0: h0, Om0: om0, Ob0: ob0, Tcmb0: tcmb0}, nil
}

// OmegaL returns the dark energy density at z = 0. Flatness fixes it to
// 1 - Om0.
func (c *FlatLCDM) OmegaL() float64 {
	return 1 - c.Om0
}

// E returns the dimensionless Hubble parameter H(z)/H0.
func (c *FlatLCDM) E(z float64) float64 {
	zp1 := 1 + z
	return math.Sqrt(c.Om0*zp1*zp1*zp1 + c.OmegaL())
}

// H returns the Hubble parameter at redshift z in km/s/Mpc.
func (c *FlatLCDM) H(z float64) float64 {
	return c.H0 * c.E(z)
}
