// Package common contains shared constants and sentinel errors used across
// the note service components.
package common

// AuthorizationHeaderName carries the bearer access token on API requests.
const AuthorizationHeaderName = "Authorization"

// DeviceIDHeaderName identifies a device-only caller (no user account).
const DeviceIDHeaderName = "X-Device-ID"
