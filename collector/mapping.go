package collector

import (
	"fmt"
	"math"
	"strconv"

	"github.com/bvboe/plex-exporter/metrics"
	"github.com/bvboe/plex-exporter/plex"
)

// Placeholders for absent upstream fields. Every sample of a family carries the
// same label names, so missing values are filled in rather than dropped.
const (
	unknownTitle    = "Unknown"
	unknownValue    = "unknown"
	notApplicable   = "N/A"
	missingIndex    = "??"
	absentNumber    = -1.0
	decisionCopy    = "copy"
	decisionConvert = "transcode"
)

// Summaries reported in the transcode_decision label.
const (
	DecisionDirectStream = "Direct Stream"
	DecisionTranscode    = "Transcode"
	DecisionUnknown      = "Unknown"
)

// SessionSet is the mapped form of one /status/sessions response.
type SessionSet struct {
	Active     int64
	Sessions   []metrics.MetricPoint
	Transcodes []metrics.MetricPoint
}

// ProgressPercent returns viewOffset/duration as a percentage rounded to two
// decimals and clamped to [0,100]. It is 0 when duration is not positive.
func ProgressPercent(viewOffset, duration int64) float64 {
	if duration <= 0 {
		return 0
	}
	p := math.Round(float64(viewOffset)/float64(duration)*100*100) / 100
	return math.Max(0, math.Min(100, p))
}

// MediaTitle builds a readable title for a session:
// "Show - S01E02 - Episode", "Movie (Year)", "Artist - Album - Track".
func MediaTitle(s plex.Session) string {
	switch s.Type {
	case "episode":
		return fmt.Sprintf("%s - S%sE%s - %s", s.GrandparentTitle, twoDigits(s.ParentIndex), twoDigits(s.Index), s.Title)
	case "movie":
		if s.Year != nil && *s.Year != 0 {
			return fmt.Sprintf("%s (%d)", s.Title, int64(*s.Year))
		}
		return s.Title
	case "track":
		return fmt.Sprintf("%s - %s - %s", s.GrandparentTitle, s.ParentTitle, s.Title)
	default:
		return s.Title
	}
}

// TranscodeDecision summarises the per-stream decisions of a transcode session.
func TranscodeDecision(video, audio string) string {
	switch {
	case video == decisionCopy && audio == decisionCopy:
		return DecisionDirectStream
	case video == decisionConvert || audio == decisionConvert:
		return DecisionTranscode
	default:
		return DecisionUnknown
	}
}

// MapSessions converts a sessions response into detail points for both session families.
func MapSessions(list *plex.SessionList) SessionSet {
	set := SessionSet{
		Sessions:   make([]metrics.MetricPoint, 0, len(list.Metadata)),
		Transcodes: make([]metrics.MetricPoint, 0),
	}

	set.Active = int64(list.Size)
	if set.Active == 0 {
		set.Active = int64(len(list.Metadata))
	}

	for _, s := range list.Metadata {
		var player plex.Player
		if s.Player != nil {
			player = *s.Player
		}
		user := unknownTitle
		if s.User != nil {
			user = orDefault(s.User.Title, unknownTitle)
		}
		sessionKey := orDefault(s.SessionKey, unknownValue)
		playerTitle := orDefault(player.Title, unknownTitle)
		product := orDefault(player.Product, unknownTitle)

		duration := flexValue(s.Duration)
		viewOffset := flexValue(s.ViewOffset)

		location := "remote"
		if player.Local {
			location = "local"
		}

		set.Sessions = append(set.Sessions, metrics.MetricPoint{
			Labels: map[string]string{
				"session_key":      sessionKey,
				"user":             user,
				"player":           playerTitle,
				"product":          product,
				"state":            orDefault(player.State, unknownValue),
				"type":             orDefault(s.Type, unknownValue),
				"address":          orDefault(player.Address, unknownValue),
				"location":         location,
				"secure":           yesNo(bool(player.Secure)),
				"media_title":      MediaTitle(s),
				"progress_percent": formatFloat(ProgressPercent(viewOffset, duration)),
				"duration_ms":      strconv.FormatInt(duration, 10),
				"view_offset_ms":   strconv.FormatInt(viewOffset, 10),
			},
			Value: 1,
		})

		ts := s.TranscodeSession
		if ts == nil {
			continue
		}
		set.Transcodes = append(set.Transcodes, metrics.MetricPoint{
			Labels: map[string]string{
				"session_key":        sessionKey,
				"user":               user,
				"player":             playerTitle,
				"product":            product,
				"transcode_decision": TranscodeDecision(ts.VideoDecision, ts.AudioDecision),
				"video_decision":     orDefault(ts.VideoDecision, notApplicable),
				"audio_decision":     orDefault(ts.AudioDecision, notApplicable),
				"subtitle_decision":  orDefault(ts.SubtitleDecision, notApplicable),
				"speed":              formatFloat(floatOr(ts.Speed, absentNumber)),
				"progress":           formatFloat(floatOr(ts.Progress, absentNumber)),
				"throttled":          yesNo(bool(ts.Throttled)),
			},
			Value: 1,
		})
	}
	return set
}

// ServerInfoPoint is the single plex_server_info sample for an identity response.
func ServerInfoPoint(id *plex.Identity) metrics.MetricPoint {
	return metrics.MetricPoint{
		Labels: map[string]string{
			"version":            orDefault(id.Version, unknownValue),
			"platform":           orDefault(id.Platform, unknownValue),
			"platform_version":   orDefault(id.PlatformVersion, unknownValue),
			"friendly_name":      orDefault(id.FriendlyName, unknownValue),
			"machine_identifier": orDefault(id.MachineIdentifier, unknownValue),
		},
		Value: 1,
	}
}

// UpdaterPoint maps the updater status. available_version repeats the current
// version when no update is pending.
func UpdaterPoint(u *plex.UpdaterStatus) metrics.MetricPoint {
	current := orDefault(u.Version, unknownValue)
	available := current
	value := 0.0
	if u.UpdateAvailable() {
		value = 1
		available = unknownValue
		if len(u.Release) > 0 {
			available = orDefault(u.Release[0].Version, unknownValue)
		}
	}
	return metrics.MetricPoint{
		Labels: map[string]string{
			"current_version":   current,
			"available_version": available,
		},
		Value: value,
	}
}

// CountDevices counts client devices, leaving out the server itself.
func CountDevices(list *plex.DeviceList, serverID string) int {
	n := 0
	for _, d := range list.Device {
		if serverID != "" && d.ClientIdentifier == serverID {
			continue
		}
		n++
	}
	return n
}

// LibraryItemPoint is one plex_library_items_count sample.
func LibraryItemPoint(section plex.LibrarySection, count int64) metrics.MetricPoint {
	return metrics.MetricPoint{
		Labels: map[string]string{
			"section_title": orDefault(section.Title, unknownTitle),
			"section_type":  orDefault(section.Type, unknownTitle),
		},
		Value: float64(count),
	}
}

func twoDigits(n *plex.FlexInt) string {
	if n == nil {
		return missingIndex
	}
	return fmt.Sprintf("%02d", int64(*n))
}

func flexValue(n *plex.FlexInt) int64 {
	if n == nil {
		return 0
	}
	return int64(*n)
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
