package models

// Owner identifies who may read and write a note or job. A note belongs to
// its UserID if set, otherwise to its DeviceID; every query applies this
// resolution.
type Owner struct {
	UserID   string
	DeviceID string
}

// Anonymous reports whether the owner has no user account (device-only).
func (o Owner) Anonymous() bool { return o.UserID == "" }

// Key returns the identity used for ownership filters: the user id when
// present, the device id otherwise.
func (o Owner) Key() string {
	if o.UserID != "" {
		return o.UserID
	}
	return o.DeviceID
}
