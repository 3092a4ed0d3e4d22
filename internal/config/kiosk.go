package config

import (
    "time"
)

// KioskConfig configures the check-in kiosk process.
type KioskConfig struct {
    Port          string        // local HTTP port the kiosk UI talks to
    APIURL        string        // base URL of the attendance server
    AdminEmail    string        // admin the kiosk logs in as before downgrading
    AdminPassword string        // admin password
    CameraRoot    string        // directory whose sub-directories are capture devices
    CameraHint    string        // preferred device id or label
    ScanPeriod    time.Duration // pause between decode attempts
    HTTPTimeout   time.Duration // per-request timeout towards the server
    SessionGrace  time.Duration // how long teardown waits for pending calls
}

// LoadKiosk reads KIOSK_* variables.  The API URL and admin credentials
// are required.
func LoadKiosk() KioskConfig {
    return KioskConfig{
        Port:          envStr("KIOSK_PORT", "8081"),
        APIURL:        must("KIOSK_API_URL"),
        AdminEmail:    must("KIOSK_ADMIN_EMAIL"),
        AdminPassword: must("KIOSK_ADMIN_PASSWORD"),
        CameraRoot:    envStr("KIOSK_CAMERA_ROOT", "/var/lib/kiosk/cameras"),
        CameraHint:    envStr("KIOSK_CAMERA_HINT", ""),
        ScanPeriod:    envDur("KIOSK_SCAN_PERIOD", 5*time.Millisecond),
        HTTPTimeout:   envDur("KIOSK_HTTP_TIMEOUT", 10*time.Second),
        SessionGrace:  envDur("KIOSK_SESSION_GRACE", 3*time.Second),
    }
}
