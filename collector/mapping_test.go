package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvboe/plex-exporter/plex"
)

func flex(n int64) *plex.FlexInt {
	v := plex.FlexInt(n)
	return &v
}

func float(v float64) *float64 {
	return &v
}

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		name       string
		viewOffset int64
		duration   int64
		want       float64
	}{
		{"half way", 30000, 60000, 50},
		{"zero duration", 1000, 0, 0},
		{"absent both", 0, 0, 0},
		{"negative duration", 1000, -5, 0},
		{"past the end", 70000, 60000, 100},
		{"negative offset", -10, 60000, 0},
		{"rounded to two decimals", 1, 3, 33.33},
		{"finished", 60000, 60000, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProgressPercent(tt.viewOffset, tt.duration)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 100.0)
		})
	}
}

func TestMediaTitle(t *testing.T) {
	tests := []struct {
		name    string
		session plex.Session
		want    string
	}{
		{
			name: "episode",
			session: plex.Session{
				Type: "episode", Title: "Pilot", GrandparentTitle: "The Show",
				ParentIndex: flex(1), Index: flex(2),
			},
			want: "The Show - S01E02 - Pilot",
		},
		{
			name:    "episode without indexes",
			session: plex.Session{Type: "episode", Title: "Pilot", GrandparentTitle: "The Show"},
			want:    "The Show - S??E?? - Pilot",
		},
		{
			name:    "movie with year",
			session: plex.Session{Type: "movie", Title: "Heat", Year: flex(1995)},
			want:    "Heat (1995)",
		},
		{
			name:    "movie without year",
			session: plex.Session{Type: "movie", Title: "Heat"},
			want:    "Heat",
		},
		{
			name: "track",
			session: plex.Session{
				Type: "track", Title: "Song", ParentTitle: "Album", GrandparentTitle: "Artist",
			},
			want: "Artist - Album - Song",
		},
		{
			name:    "clip falls back to title",
			session: plex.Session{Type: "clip", Title: "Trailer"},
			want:    "Trailer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MediaTitle(tt.session))
		})
	}
}

func TestTranscodeDecision(t *testing.T) {
	assert.Equal(t, DecisionDirectStream, TranscodeDecision("copy", "copy"))
	assert.Equal(t, DecisionTranscode, TranscodeDecision("transcode", "copy"))
	assert.Equal(t, DecisionTranscode, TranscodeDecision("copy", "transcode"))
	assert.Equal(t, DecisionTranscode, TranscodeDecision("", "transcode"))
	assert.Equal(t, DecisionUnknown, TranscodeDecision("", ""))
	assert.Equal(t, DecisionUnknown, TranscodeDecision("copy", ""))
}

func TestMapSessions(t *testing.T) {
	list := &plex.SessionList{
		Size: 2,
		Metadata: []plex.Session{
			{
				SessionKey: "12",
				Type:       "movie",
				Title:      "Heat",
				Year:       flex(1995),
				Duration:   flex(60000),
				ViewOffset: flex(30000),
				User:       &plex.User{Title: "alice"},
				Player: &plex.Player{
					Title: "Living Room", Product: "Plex for Roku", State: "playing",
					Address: "10.0.0.5", Local: true, Secure: true,
				},
				TranscodeSession: &plex.TranscodeSession{
					VideoDecision: "transcode",
					AudioDecision: "copy",
					Speed:         float(1.5),
					Throttled:     true,
				},
			},
			{
				Type:  "track",
				Title: "Song",
			},
		},
	}

	set := MapSessions(list)
	assert.Equal(t, int64(2), set.Active)
	require.Len(t, set.Sessions, 2)
	require.Len(t, set.Transcodes, 1)

	first := set.Sessions[0].Labels
	assert.Equal(t, "12", first["session_key"])
	assert.Equal(t, "alice", first["user"])
	assert.Equal(t, "Living Room", first["player"])
	assert.Equal(t, "local", first["location"])
	assert.Equal(t, "yes", first["secure"])
	assert.Equal(t, "Heat (1995)", first["media_title"])
	assert.Equal(t, "50", first["progress_percent"])
	assert.Equal(t, "60000", first["duration_ms"])
	assert.Equal(t, "30000", first["view_offset_ms"])
	assert.Equal(t, 1.0, set.Sessions[0].Value)

	second := set.Sessions[1].Labels
	assert.Equal(t, "unknown", second["session_key"])
	assert.Equal(t, "Unknown", second["user"])
	assert.Equal(t, "Unknown", second["player"])
	assert.Equal(t, "Unknown", second["product"])
	assert.Equal(t, "unknown", second["state"])
	assert.Equal(t, "unknown", second["address"])
	assert.Equal(t, "remote", second["location"])
	assert.Equal(t, "no", second["secure"])
	assert.Equal(t, "0", second["progress_percent"])
	assert.Equal(t, "0", second["duration_ms"])

	for _, p := range set.Sessions {
		assert.Len(t, p.Labels, len(sessionLabels))
		for _, name := range sessionLabels {
			assert.Contains(t, p.Labels, name)
		}
	}

	tc := set.Transcodes[0].Labels
	assert.Len(t, tc, len(transcodeLabels))
	assert.Equal(t, "12", tc["session_key"])
	assert.Equal(t, DecisionTranscode, tc["transcode_decision"])
	assert.Equal(t, "transcode", tc["video_decision"])
	assert.Equal(t, "copy", tc["audio_decision"])
	assert.Equal(t, "N/A", tc["subtitle_decision"])
	assert.Equal(t, "1.5", tc["speed"])
	assert.Equal(t, "-1", tc["progress"])
	assert.Equal(t, "yes", tc["throttled"])
}

func TestMapSessionsDecisionDefaults(t *testing.T) {
	list := &plex.SessionList{Metadata: []plex.Session{
		{SessionKey: "1", TranscodeSession: &plex.TranscodeSession{SubtitleDecision: "burn"}},
		{SessionKey: "2", TranscodeSession: &plex.TranscodeSession{}},
	}}

	set := MapSessions(list)
	assert.Equal(t, int64(2), set.Active, "size falls back to the number of sessions")
	require.Len(t, set.Transcodes, 2)
	for _, p := range set.Transcodes {
		assert.Len(t, p.Labels, len(transcodeLabels))
		assert.Equal(t, "N/A", p.Labels["video_decision"])
		assert.Equal(t, "N/A", p.Labels["audio_decision"])
		assert.Equal(t, "no", p.Labels["throttled"])
	}
	assert.Equal(t, "burn", set.Transcodes[0].Labels["subtitle_decision"])
	assert.Equal(t, "N/A", set.Transcodes[1].Labels["subtitle_decision"])
}

func TestMapSessionsEmpty(t *testing.T) {
	set := MapSessions(&plex.SessionList{})
	assert.Zero(t, set.Active)
	assert.NotNil(t, set.Sessions)
	assert.Empty(t, set.Sessions)
	assert.Empty(t, set.Transcodes)
}

func TestServerInfoPoint(t *testing.T) {
	p := ServerInfoPoint(&plex.Identity{Version: "1.40.0", MachineIdentifier: "abc"})
	assert.Equal(t, map[string]string{
		"version":            "1.40.0",
		"platform":           "unknown",
		"platform_version":   "unknown",
		"friendly_name":      "unknown",
		"machine_identifier": "abc",
	}, p.Labels)
	assert.Equal(t, 1.0, p.Value)
}

func TestUpdaterPoint(t *testing.T) {
	t.Run("update available", func(t *testing.T) {
		p := UpdaterPoint(&plex.UpdaterStatus{
			Status:  1,
			Version: "1.40.0",
			Release: []plex.Release{{Version: "1.41.0"}},
		})
		assert.Equal(t, 1.0, p.Value)
		assert.Equal(t, "1.40.0", p.Labels["current_version"])
		assert.Equal(t, "1.41.0", p.Labels["available_version"])
	})

	t.Run("up to date", func(t *testing.T) {
		p := UpdaterPoint(&plex.UpdaterStatus{Version: "1.40.0"})
		assert.Equal(t, 0.0, p.Value)
		assert.Equal(t, "1.40.0", p.Labels["available_version"])
	})

	t.Run("flagged without release", func(t *testing.T) {
		p := UpdaterPoint(&plex.UpdaterStatus{Status: 1})
		assert.Equal(t, 1.0, p.Value)
		assert.Equal(t, "unknown", p.Labels["current_version"])
		assert.Equal(t, "unknown", p.Labels["available_version"])
	})
}

func TestCountDevices(t *testing.T) {
	list := &plex.DeviceList{Device: []plex.Device{
		{ClientIdentifier: "server"},
		{ClientIdentifier: "phone"},
		{ClientIdentifier: "tv"},
	}}
	assert.Equal(t, 2, CountDevices(list, "server"))
	assert.Equal(t, 3, CountDevices(list, ""))
	assert.Equal(t, 0, CountDevices(&plex.DeviceList{}, "server"))
}

func TestLibraryItemPoint(t *testing.T) {
	p := LibraryItemPoint(plex.LibrarySection{Key: "1", Title: "Movies", Type: "movie"}, 42)
	assert.Equal(t, map[string]string{"section_title": "Movies", "section_type": "movie"}, p.Labels)
	assert.Equal(t, 42.0, p.Value)

	p = LibraryItemPoint(plex.LibrarySection{Key: "2"}, 0)
	assert.Equal(t, "Unknown", p.Labels["section_title"])
	assert.Equal(t, "Unknown", p.Labels["section_type"])
}
