package beacon

import (
	"os"
	"runtime"
	"strings"

	"github.com/solatis/beacon/internal/upload"
)

// ClientInfo implements pings.ClientInfoProvider. The map feeds the
// client_info section of every assembled ping. When includeClientID is
// false the client_id key is absent entirely; the wire contract
// distinguishes absent from null.
func (c *Client) ClientInfo(includeClientID bool) map[string]any {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	info := map[string]any{
		"telemetry_sdk_build": upload.SDKVersion,
		"os":                  runtime.GOOS,
		"os_version":          hostOSVersion(),
		"architecture":        runtime.GOARCH,
		"locale":              hostLocale(),
		"first_run_date":      c.firstRunDate,
	}
	if c.cfg.AppBuild != "" {
		info["app_build"] = c.cfg.AppBuild
	}
	if c.cfg.AppDisplayVersion != "" {
		info["app_display_version"] = c.cfg.AppDisplayVersion
	}
	if includeClientID {
		info["client_id"] = string(c.clientID)
	}
	return info
}

// hostOSVersion reports the kernel release where the platform exposes
// one. Best effort; "unknown" elsewhere.
func hostOSVersion() string {
	if runtime.GOOS == "linux" {
		if raw, err := os.ReadFile("/proc/sys/kernel/osrelease"); err == nil {
			return strings.TrimSpace(string(raw))
		}
	}
	return "unknown"
}

// hostLocale derives a BCP47-ish locale tag from the environment.
// Best effort; "und" (undetermined) when nothing usable is set.
func hostLocale() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		val := os.Getenv(key)
		if val == "" || val == "C" || val == "POSIX" {
			continue
		}
		if i := strings.IndexAny(val, ".@"); i >= 0 {
			val = val[:i]
		}
		return strings.ReplaceAll(val, "_", "-")
	}
	return "und"
}
