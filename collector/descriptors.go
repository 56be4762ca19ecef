package collector

import "github.com/bvboe/plex-exporter/metrics"

// Metric names exposed by the collector.
const (
	MetricScrapesTotal         = "plex_exporter_scrapes_total"
	MetricScrapeErrorsTotal    = "plex_exporter_scrape_errors_total"
	MetricScrapeDuration       = "plex_exporter_scrape_duration_seconds"
	MetricServerUp             = "plex_server_up"
	MetricServerInfo           = "plex_server_info"
	MetricUpdaterAvailable     = "plex_updater_available"
	MetricDevicesConnected     = "plex_devices_connected_count"
	MetricActivitiesActive     = "plex_activities_active_count"
	MetricSessionsActive       = "plex_sessions_active"
	MetricSessionDetails       = "plex_session_details"
	MetricTranscodesActive     = "plex_transcode_sessions_active"
	MetricTranscodeDetails     = "plex_transcode_session_details"
	MetricLibrarySectionsCount = "plex_library_sections_count"
	MetricLibraryItemsCount    = "plex_library_items_count"
)

var (
	serverInfoLabels = []string{"version", "platform", "platform_version", "friendly_name", "machine_identifier"}
	updaterLabels    = []string{"current_version", "available_version"}
	sessionLabels    = []string{
		"session_key", "user", "player", "product", "state", "type", "address",
		"location", "secure", "media_title", "progress_percent", "duration_ms", "view_offset_ms",
	}
	transcodeLabels = []string{
		"session_key", "user", "player", "product", "transcode_decision",
		"video_decision", "audio_decision", "subtitle_decision", "speed", "progress", "throttled",
	}
	libraryItemLabels = []string{"section_title", "section_type"}
)

// Descriptors returns every metric family the collector writes, in exposition order.
func Descriptors() []metrics.Descriptor {
	return []metrics.Descriptor{
		{Name: MetricScrapesTotal, Help: "Total number of scrapes performed.", Type: metrics.CounterType},
		{Name: MetricScrapeErrorsTotal, Help: "Total number of scrape errors.", Type: metrics.CounterType},
		{Name: MetricScrapeDuration, Help: "Duration of the last Plex API scrape in seconds.", Type: metrics.GaugeType},
		{Name: MetricServerUp, Help: "Indicates if the Plex server is reachable (1 = yes, 0 = no).", Type: metrics.GaugeType},
		{Name: MetricServerInfo, Help: "Plex Media Server information (value is 1).", Type: metrics.GaugeType, LabelNames: serverInfoLabels},
		{Name: MetricUpdaterAvailable, Help: "Indicates if a Plex server update is available (1 = yes, 0 = no).", Type: metrics.GaugeType, LabelNames: updaterLabels},
		{Name: MetricDevicesConnected, Help: "Number of connected client devices reported by Plex.", Type: metrics.GaugeType},
		{Name: MetricActivitiesActive, Help: "Number of active background activities (scanning, processing).", Type: metrics.GaugeType},
		{Name: MetricSessionsActive, Help: "Number of active Plex playback sessions.", Type: metrics.GaugeType},
		{Name: MetricSessionDetails, Help: "Details about active playback sessions (value is 1).", Type: metrics.GaugeType, LabelNames: sessionLabels},
		{Name: MetricTranscodesActive, Help: "Number of active transcode sessions.", Type: metrics.GaugeType},
		{Name: MetricTranscodeDetails, Help: "Details about active transcode sessions (value is 1).", Type: metrics.GaugeType, LabelNames: transcodeLabels},
		{Name: MetricLibrarySectionsCount, Help: "Total number of library sections.", Type: metrics.GaugeType},
		{Name: MetricLibraryItemsCount, Help: "Total number of items in a library section.", Type: metrics.GaugeType, LabelNames: libraryItemLabels},
	}
}
