package audio

import "strings"

const DefaultSampleRate = 24000

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth guesses from a device name whether it is a headset that
// drops to a low quality profile while its microphone is open.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DataCallback receives captured mono PCM16 samples. The slice is only
// valid for the duration of the call.
type DataCallback func(samples []int16)

// SampleSource fills buf with the next samples to play and returns how
// many it wrote. The remainder of buf is played as silence.
type SampleSource func(buf []int16) int

type StreamConfig struct {
	SampleRate int
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config StreamConfig) (CaptureDevice, error)
	NewPlayback(config StreamConfig, source SampleSource) (PlaybackDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
}

type PlaybackDevice interface {
	Start() error
	Stop()
	Close()
}

// fill runs source and pads the rest of buf with silence.
func fill(source SampleSource, buf []int16) {
	n := 0
	if source != nil {
		n = min(max(source(buf), 0), len(buf))
	}
	clear(buf[n:])
}
