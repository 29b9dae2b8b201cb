// Package key defines the canonical set of configuration identifiers used for centralized settings management.
package key

// Video Service API - these keys locate the remote service and shape its requests.
const (
	APIBaseURL  = "api.base_url"
	APIPageSize = "api.page_size"
)

// Media Playback - these keys configure the media element and its adaptive engine.
const (
	Player                     = "player.default"
	PlayerBackBuffer           = "player.back_buffer"
	PlayerLowLatency           = "player.low_latency"
	PlayerParallelFetch        = "player.parallel_fetch"
	PlayerCompletionPercentage = "player.completion_percentage"
)

// Status Reconciliation - poll cadences in seconds.
const (
	ReconcileInterval     = "reconcile.interval"
	ReconcileListInterval = "reconcile.list_interval"
)

// Uploads.
const (
	UploadMaxSize = "upload.max_size"
)

// History Tracking - these keys configure the persistence of watch progress.
const (
	HistorySave = "history.save"
)

// Iconography - these keys manage the visual rendering of UI symbols.
const (
	IconsVariant = "icons.variant"
)

// Terminal User Interface (TUI).
const (
	TUIItemSpacing = "tui.item_spacing"
)

// Logging Infrastructure - these keys manage the application's internal diagnostics.
const (
	LogsWrite = "logs.write"
	LogsLevel = "logs.level"
	LogsJson  = "logs.json"
)

// CLI Execution Environment.
const (
	CliColored = "cli.colored"
)
