package saleae

import "github.com/google/gousb"

// Profile identifies one supported FX2 board: the IDs it enumerates with
// out of the box, the IDs it renumerates to after firmware upload, and what
// it is.  Profiles are static; Device holds non-owning pointers into the
// table.
type Profile struct {
	OrigVID gousb.ID
	OrigPID gousb.ID
	FwVID   gousb.ID
	FwPID   gousb.ID

	Vendor    string
	Model     string
	Version   string
	NumProbes int
}

var supportedFX2 = []Profile{
	// Saleae Logic
	{0x0925, 0x3881, 0x0925, 0x3881, "Saleae", "Logic", "", 8},
	// default Cypress FX2 without EEPROM
	{0x04b4, 0x8613, 0x0925, 0x3881, "Cypress", "FX2", "", 16},
}

// matchProfile returns the profile whose pre-firmware IDs match, or nil.
func matchProfile(vid, pid gousb.ID) *Profile {
	for i := range supportedFX2 {
		if supportedFX2[i].OrigVID == vid && supportedFX2[i].OrigPID == pid {
			return &supportedFX2[i]
		}
	}
	return nil
}
