package version

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
)

// Stamped by the release build via ldflags:
//
//	-X chancai/internal/version.Version=v0.1.0
//	-X chancai/internal/version.Commit=abc1234
//	-X chancai/internal/version.Date=2025-01-01T00:00:00Z
var (
	Version = "dev"
	Commit  = ""
	Date    = "unknown"
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
}

// Get reports the build info, falling back to the vcs metadata stamped
// by the Go toolchain when no ldflags were passed.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: Date,
		GoVersion: "unknown",
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		if info.Commit == "" {
			info.Commit = "unknown"
		}
		return info
	}

	info.GoVersion = bi.GoVersion
	if info.Commit == "" {
		for _, setting := range bi.Settings {
			if setting.Key == "vcs.revision" {
				info.Commit = setting.Value
				break
			}
		}
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	return info
}

func HandleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Get())
}
