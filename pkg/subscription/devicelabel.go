package subscription

import (
	"strings"
)

// Match order matters: Edge and Opera UAs also contain "chrome", and almost
// every browser UA contains "safari".
var browserMarkers = []struct {
	marker string
	name   string
}{
	{"edg/", "Edge"},
	{"edge/", "Edge"},
	{"opr/", "Opera"},
	{"opera", "Opera"},
	{"samsungbrowser", "Samsung Internet"},
	{"firefox/", "Firefox"},
	{"fxios/", "Firefox"},
	{"crios/", "Chrome"},
	{"chrome/", "Chrome"},
	{"safari/", "Safari"},
}

var osMarkers = []struct {
	marker string
	name   string
}{
	{"windows", "Windows"},
	{"iphone", "iOS"},
	{"ipad", "iOS"},
	{"android", "Android"},
	{"mac os x", "macOS"},
	{"macintosh", "macOS"},
	{"cros", "ChromeOS"},
	{"linux", "Linux"},
}

// DeriveDeviceName builds a human-readable device label like "Chrome on
// macOS" from a raw User-Agent string. Registration uses it when the client
// does not supply an explicit device name, so the audit trail and device
// management UI show something better than a full UA string. Returns an empty
// string when nothing is recognized.
func DeriveDeviceName(userAgent string) string {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	if ua == "" {
		return ""
	}

	var browser, os string
	for _, m := range browserMarkers {
		if strings.Contains(ua, m.marker) {
			browser = m.name
			break
		}
	}
	for _, m := range osMarkers {
		if strings.Contains(ua, m.marker) {
			os = m.name
			break
		}
	}

	switch {
	case browser != "" && os != "":
		return browser + " on " + os
	case browser != "":
		return browser
	case os != "":
		return os
	default:
		return ""
	}
}
