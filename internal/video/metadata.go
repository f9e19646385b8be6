// Package video wraps the external ffprobe/ffmpeg tools behind a fixed
// call contract: metadata probing and burning an overlay image sequence
// into a clip.
package video

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Metadata is what the probe extracts from a clip.
type Metadata struct {
	CreationTime time.Time     `json:"creationTime"`
	Duration     time.Duration `json:"duration"`
	Width        int           `json:"width"`
	Height       int           `json:"height"`
	FrameRate    float64       `json:"frameRate"`
}

type ffprobeOutput struct {
	Format struct {
		Duration string            `json:"duration"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
	Streams []struct {
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
}

// creation_time shows up in a few layouts depending on the camera.
var creationTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02 15:04:05",
}

// Probe runs ffprobe against the clip and extracts the fields the
// sync and encode steps need.
func Probe(path string) (*Metadata, error) {
	cmd := exec.Command("ffprobe", "-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed for %s: %w (output: %s)", path, err, string(output))
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	meta := &Metadata{}
	if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		meta.Duration = time.Duration(d * float64(time.Second))
	}

	for key, value := range probe.Format.Tags {
		k := strings.ToLower(key)
		if k != "creation_time" && k != "date" {
			continue
		}
		for _, layout := range creationTimeLayouts {
			if t, err := time.Parse(layout, value); err == nil {
				meta.CreationTime = t
				break
			}
		}
		if !meta.CreationTime.IsZero() {
			break
		}
	}

	for _, stream := range probe.Streams {
		if stream.Width == 0 || stream.Height == 0 {
			continue
		}
		meta.Width = stream.Width
		meta.Height = stream.Height
		if parts := strings.Split(stream.RFrameRate, "/"); len(parts) == 2 {
			num, _ := strconv.ParseFloat(parts[0], 64)
			den, _ := strconv.ParseFloat(parts[1], 64)
			if den != 0 {
				meta.FrameRate = num / den
			}
		}
		break
	}

	return meta, nil
}
