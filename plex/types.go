package plex

import (
	"bytes"
	"fmt"
	"strconv"
)

// FlexInt decodes a JSON number or numeric string. Plex is not consistent about
// which one it sends for keys, sizes and offsets.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(bytes.Trim(b, `"`))
	if s == "" {
		*f = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = FlexInt(n)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %s", string(b))
	}
	*f = FlexInt(int64(v))
	return nil
}

// FlexBool decodes true/false, 0/1 and their string forms.
type FlexBool bool

func (f *FlexBool) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch string(bytes.Trim(b, `"`)) {
	case "true", "1":
		*f = true
	case "false", "0", "", "null":
		*f = false
	default:
		return fmt.Errorf("invalid boolean %s", string(b))
	}
	return nil
}

// Identity is the /identity MediaContainer.
type Identity struct {
	Version           string `json:"version"`
	Platform          string `json:"platform"`
	PlatformVersion   string `json:"platformVersion"`
	FriendlyName      string `json:"friendlyName"`
	MachineIdentifier string `json:"machineIdentifier"`
}

// SessionList is the /status/sessions MediaContainer.
type SessionList struct {
	Size     FlexInt   `json:"size"`
	Metadata []Session `json:"Metadata"`
}

// Session is one active playback session.
type Session struct {
	SessionKey       string            `json:"sessionKey"`
	Type             string            `json:"type"`
	Title            string            `json:"title"`
	GrandparentTitle string            `json:"grandparentTitle"`
	ParentTitle      string            `json:"parentTitle"`
	ParentIndex      *FlexInt          `json:"parentIndex"`
	Index            *FlexInt          `json:"index"`
	Year             *FlexInt          `json:"year"`
	Duration         *FlexInt          `json:"duration"`
	ViewOffset       *FlexInt          `json:"viewOffset"`
	User             *User             `json:"User"`
	Player           *Player           `json:"Player"`
	TranscodeSession *TranscodeSession `json:"TranscodeSession"`
}

// User is the account attached to a session.
type User struct {
	Title string `json:"title"`
}

// Player is the client device attached to a session.
type Player struct {
	Title   string   `json:"title"`
	Product string   `json:"product"`
	State   string   `json:"state"`
	Address string   `json:"address"`
	Local   FlexBool `json:"local"`
	Secure  FlexBool `json:"secure"`
}

// TranscodeSession is present when the server converts the stream for the client.
type TranscodeSession struct {
	VideoDecision    string   `json:"videoDecision"`
	AudioDecision    string   `json:"audioDecision"`
	SubtitleDecision string   `json:"subtitleDecision"`
	Speed            *float64 `json:"speed"`
	Progress         *float64 `json:"progress"`
	Throttled        FlexBool `json:"throttled"`
}

// LibrarySections is the /library/sections MediaContainer.
type LibrarySections struct {
	Size      FlexInt          `json:"size"`
	Directory []LibrarySection `json:"Directory"`
}

// LibrarySection is one library (Movies, TV Shows, Music, ...).
type LibrarySection struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// SectionContents is the MediaContainer of /library/sections/{key}/all with a zero page size.
type SectionContents struct {
	Size      FlexInt  `json:"size"`
	TotalSize *FlexInt `json:"totalSize"`
}

// ItemCount prefers totalSize and falls back to size.
func (s *SectionContents) ItemCount() int64 {
	if s.TotalSize != nil {
		return int64(*s.TotalSize)
	}
	return int64(s.Size)
}

// DeviceList is the /devices MediaContainer.
type DeviceList struct {
	Size   FlexInt  `json:"size"`
	Device []Device `json:"Device"`
}

// Device is a client known to the server.
type Device struct {
	Name             string `json:"name"`
	Platform         string `json:"platform"`
	ClientIdentifier string `json:"clientIdentifier"`
}

// ActivityList is the /activities MediaContainer.
type ActivityList struct {
	Size FlexInt `json:"size"`
}

// UpdaterStatus is the /updater/status MediaContainer.
type UpdaterStatus struct {
	Status  FlexInt   `json:"status"`
	Version string    `json:"version"`
	Release []Release `json:"Release"`
}

// Release is an available server build.
type Release struct {
	Version string `json:"version"`
}

// UpdateAvailable reports whether Plex flagged an update (status 1).
func (u *UpdaterStatus) UpdateAvailable() bool {
	return u.Status == 1
}

// mediaContainer is the envelope every Plex JSON response is wrapped in.
type mediaContainer[T any] struct {
	MediaContainer *T `json:"MediaContainer"`
}
