package domain

// Visibility controls the driver's public surfaces
type Visibility struct {
	Profile      bool `json:"profile"`
	QRCode       bool `json:"qr_code"`
	ReferralLink bool `json:"referral_link"`
}

// VisibilityFor computes the public surfaces for a driver status. Only an
// active driver with a visible membership is shown; every other status hides
// all three surfaces.
func VisibilityFor(status DriverStatus, membershipVisible bool) Visibility {
	on := status == DriverActive && membershipVisible
	return Visibility{Profile: on, QRCode: on, ReferralLink: on}
}

// PublicState is a display concern layered on an active driver
type PublicState string

const (
	PublicActiveVisible PublicState = "active_visible"
	PublicActiveHidden  PublicState = "active_hidden"
	PublicNone          PublicState = ""
)

// PublicStateFor reports whether an active driver is publicly searchable.
// Non-active drivers have no public state.
func PublicStateFor(status DriverStatus, membershipVisible bool) PublicState {
	if status != DriverActive {
		return PublicNone
	}
	if membershipVisible {
		return PublicActiveVisible
	}
	return PublicActiveHidden
}
