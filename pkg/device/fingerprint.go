package device

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/tendant/login-guard/pkg/identifier"
)

const (
	DeviceTypeMobile  = "Mobile"
	DeviceTypeTablet  = "Tablet"
	DeviceTypeDesktop = "Desktop"
	DeviceTypeOther   = "Other"

	UnknownDeviceName = "Unknown Device"
)

// DeviceInfo contains the components used to generate a device fingerprint.
// Missing fields are treated as empty strings.
type DeviceInfo struct {
	UserAgent        string `json:"user_agent"`
	IPAddress        string `json:"ip_address"`
	AcceptLanguage   string `json:"accept_language,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
	ScreenResolution string `json:"screen_resolution,omitempty"`
}

// Fingerprint returns the hex SHA-256 of the ordered, pipe-joined components.
func Fingerprint(info DeviceInfo) string {
	combined := strings.Join([]string{
		info.UserAgent,
		info.IPAddress,
		info.AcceptLanguage,
		info.Timezone,
		info.ScreenResolution,
	}, "|")

	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// ExtractDeviceInfo extracts fingerprint data from an HTTP request
func ExtractDeviceInfo(r *http.Request) DeviceInfo {
	client := identifier.ExtractClientInfo(r)
	return DeviceInfo{
		UserAgent:        r.UserAgent(),
		IPAddress:        client.Address,
		AcceptLanguage:   r.Header.Get("Accept-Language"),
		Timezone:         r.Header.Get("Timezone"),
		ScreenResolution: r.Header.Get("Screen-Resolution"),
	}
}

// DeviceName extracts a human-readable device name from the user agent
func DeviceName(userAgent string) string {
	if userAgent == "" {
		return UnknownDeviceName
	}

	// Check for common mobile devices
	if contains(userAgent, "iPhone") {
		return "iPhone"
	} else if contains(userAgent, "iPad") {
		return "iPad"
	} else if contains(userAgent, "Android") && (contains(userAgent, "Mobile") || contains(userAgent, "Pixel") || contains(userAgent, "Samsung") || contains(userAgent, "SM-")) {
		if contains(userAgent, "Pixel") {
			return "Google Pixel"
		} else if contains(userAgent, "Samsung") || contains(userAgent, "SM-") {
			return "Samsung Phone"
		}
		return "Android Phone"
	} else if contains(userAgent, "Android") {
		return "Android Tablet"
	}

	// CrOS user agents also mention Linux
	if contains(userAgent, "CrOS") {
		return "Chromebook"
	} else if contains(userAgent, "Macintosh") || contains(userAgent, "Mac OS X") {
		return "Mac"
	} else if contains(userAgent, "Windows") {
		return "Windows PC"
	} else if contains(userAgent, "Linux") {
		return "Linux"
	}

	// Edge and Chrome both claim Safari; check the most specific token first
	if contains(userAgent, "Edg") {
		return "Edge Browser"
	} else if contains(userAgent, "Firefox") {
		return "Firefox Browser"
	} else if contains(userAgent, "Chrome") {
		return "Chrome Browser"
	} else if contains(userAgent, "Safari") {
		return "Safari Browser"
	}

	return UnknownDeviceName
}

// DeviceType categorizes the device as Mobile, Tablet, Desktop, or Other
func DeviceType(userAgent string) string {
	if userAgent == "" {
		return DeviceTypeOther
	}

	if contains(userAgent, "iPhone") ||
		(contains(userAgent, "Android") && contains(userAgent, "Mobile")) ||
		contains(userAgent, "Windows Phone") {
		return DeviceTypeMobile
	}

	if contains(userAgent, "iPad") ||
		(contains(userAgent, "Android") && !contains(userAgent, "Mobile")) {
		return DeviceTypeTablet
	}

	if contains(userAgent, "Windows") ||
		contains(userAgent, "Macintosh") ||
		contains(userAgent, "Linux") ||
		contains(userAgent, "CrOS") {
		return DeviceTypeDesktop
	}

	return DeviceTypeOther
}

// contains is a helper function to check if a string contains a substring (case insensitive)
func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
