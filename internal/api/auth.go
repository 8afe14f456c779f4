package api

import (
	"net/http"

	"smtrack.dev/telemetry-hub/pkg/scope"
)

// Identity headers set by the verified gateway in front of this service.
// Token issuance and verification happen upstream; by the time a request
// lands here the headers are trusted.
const (
	headerRole         = "X-Role"
	headerHospitalID   = "X-Hospital-Id"
	headerWardID       = "X-Ward-Id"
	headerDeviceSerial = "X-Device-Serial"
)

// claimsFrom extracts the caller's scoping claims from the gateway headers.
// Missing headers yield empty claims, which the scope resolver rejects.
func claimsFrom(r *http.Request) scope.Claims {
	return scope.Claims{
		Role:       scope.Role(r.Header.Get(headerRole)),
		HospitalID: r.Header.Get(headerHospitalID),
		WardID:     r.Header.Get(headerWardID),
	}
}

// deviceSerial extracts the reporting device's serial from the gateway
// headers.
func deviceSerial(r *http.Request) string {
	return r.Header.Get(headerDeviceSerial)
}
