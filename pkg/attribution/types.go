package attribution

// StateTotals is the app thread's time per scheduling state, in ms.
type StateTotals struct {
	Running         float64 `json:"running"`
	Runnable        float64 `json:"runnable"`
	Uninterruptible float64 `json:"uninterruptible_sleep"`
	Sleeping        float64 `json:"sleeping"`
}

// LibraryStall is blocked I/O attributed to one library.
type LibraryStall struct {
	Library     string  `json:"library"`
	TotalNs     int64   `json:"total_ns"`
	TotalMs     float64 `json:"total_ms"`
	Occurrences int     `json:"occurrences"`
}

// AssetLoad is one slow asset-load span.
type AssetLoad struct {
	Name string  `json:"name"`
	PID  int     `json:"pid"`
	Ms   float64 `json:"ms"`
}

// ProcessCPU is scheduled time of one process inside the window.
type ProcessCPU struct {
	Name        string  `json:"name"`
	PID         int     `json:"pid"`
	Ms          float64 `json:"ms"`
	Occurrences int     `json:"occurrences"`
	Percent     float64 `json:"percent"`
}

// ThreadCPU is scheduled time of one (thread, process) name pair.
type ThreadCPU struct {
	Thread      string  `json:"thread"`
	Process     string  `json:"process"`
	TID         int     `json:"tid"`
	Ms          float64 `json:"ms"`
	Occurrences int     `json:"occurrences"`
	Percent     float64 `json:"percent"`
}

// BinderStats summarises the app thread's binder transactions.
type BinderStats struct {
	Count int     `json:"count"`
	Ms    float64 `json:"ms"`
}

// AbnormalStart is another process initialising during the launch.
type AbnormalStart struct {
	PID     int     `json:"pid"`
	Process string  `json:"process"`
	Slice   string  `json:"slice"`
	Start   int64   `json:"start"`
	Ms      float64 `json:"ms"`
}

// BackgroundActivity is a watched background service that ran during the
// launch.
type BackgroundActivity struct {
	Name string  `json:"name"`
	TID  int     `json:"tid"`
	Ms   float64 `json:"ms"`
}

// Report is every aggregation for one execution window. Lists are empty,
// never nil, when nothing matched.
type Report struct {
	States       StateTotals          `json:"thread_states"`
	BlockIO      []LibraryStall       `json:"block_io"`
	AssetLoads   []AssetLoad          `json:"asset_loads"`
	CPUByProcess []ProcessCPU         `json:"cpu_by_process"`
	CPUByThread  []ThreadCPU          `json:"cpu_by_thread"`
	Binder       BinderStats          `json:"binder"`
	Abnormal     []AbnormalStart      `json:"abnormal_starts"`
	Background   []BackgroundActivity `json:"background"`
}

func emptyReport() Report {
	return Report{
		BlockIO:      []LibraryStall{},
		AssetLoads:   []AssetLoad{},
		CPUByProcess: []ProcessCPU{},
		CPUByThread:  []ThreadCPU{},
		Abnormal:     []AbnormalStart{},
		Background:   []BackgroundActivity{},
	}
}
