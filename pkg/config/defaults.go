// Package config provides YAML and environment configuration for launchtrace.
package config

import "time"

// Threshold defaults.
const (
	DefaultInternetIdleDiscard    = 100 * time.Millisecond
	DefaultIOStallBudget          = 150 * time.Microsecond
	DefaultBackgroundSignificance = 10 * time.Millisecond
	DefaultAssetLoadFloor         = 50 * time.Millisecond
	DefaultRecentFallback         = 500 * time.Millisecond
)

// Attribution defaults.
const (
	DefaultTopN              = 10
	DefaultLibraryPrefix     = "1"
	DefaultAssetSlicePattern = "LoadApkAssets%"
	DefaultBinderSliceName   = "binder transaction"
	DefaultAbnormalSlice     = "bindApplication"
)

// App defaults.
const (
	DefaultLauncherPackage       = "com.sec.android.app.launcher"
	DefaultLauncherThreadPattern = "id.app.launcher%"
)

// Batch defaults.
const (
	DefaultWorkerCap     = 8
	DefaultTraceExt      = ".log"
	DefaultOutputFormat  = "json"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultServiceName   = "launchtrace"
	DefaultMetricsAddr   = ""
	DefaultOTLPEndpoint  = ""
	DefaultShutdownDelay = 5 * time.Second
)

// DefaultCores lists the CPU indexes counted by CPU attribution.
func DefaultCores() []int {
	return []int{1, 2, 3, 4, 5, 6, 7}
}

// DefaultKeywords is the ordered app keyword list. Order decides which
// keyword wins when several are substrings of one file token.
func DefaultKeywords() []string {
	return []string{
		"camera", "hello", "call", "clock", "contact", "calendar", "calculator",
		"gallery", "message", "menu", "myfile", "internet", "note", "setting",
		"voice", "recent",
	}
}

// DefaultGroups lists the snapshot app groups; group N is element N-1.
func DefaultGroups() [][]string {
	return [][]string{
		{"camera"},
		{"hello", "call", "dial", "clock"},
		{"contact", "calendar", "calculator"},
		{"gallery", "message", "menu"},
		{"myfile", "sip", "internet"},
		{"note", "setting", "voice", "recent"},
	}
}

// DefaultDisplayNames maps app keywords to report names.
func DefaultDisplayNames() map[string]string {
	return map[string]string{
		"camera":     "Camera",
		"hello":      "Helloworld",
		"call":       "Dial",
		"clock":      "Clock",
		"contact":    "Contacts",
		"calendar":   "Calendar",
		"calculator": "Calculator",
		"gallery":    "Gallery",
		"message":    "Messages",
		"menu":       "Menu",
		"myfile":     "MyFiles",
		"internet":   "Internet",
		"note":       "Notes",
		"setting":    "Settings",
		"voice":      "VoiceNote",
		"recent":     "Recent",
	}
}

// DefaultBackgroundPatterns lists LIKE patterns of background services
// checked for activity during a launch.
func DefaultBackgroundPatterns() []string {
	return []string{
		"%gms.persistent%",
		"%googlequicksearchbox%",
		"%com.google.android.play%",
		"%.apps.messaging%",
	}
}

// DefaultAssetProcesses lists LIKE patterns of system main threads whose
// asset loads are reported alongside the app's.
func DefaultAssetProcesses() []string {
	return []string{"system_server", "surfaceflinger", "%ndroid.systemui%"}
}
