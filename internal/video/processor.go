package video

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ProgressFunc receives the encode progress as a percentage 0..100.
type ProgressFunc func(percent float64)

// Processor burns an overlay PNG sequence into a clip with ffmpeg.
type Processor struct {
	progress ProgressFunc
}

// NewProcessor returns a processor without progress reporting.
func NewProcessor() *Processor {
	return &Processor{}
}

// SetProgressFunc registers the encode progress callback.
func (p *Processor) SetProgressFunc(fn ProgressFunc) {
	p.progress = fn
}

// ApplyOverlays composites the overlay image sequence onto the input
// clip at the given corner position and writes the result to
// outputPath. Audio is copied untouched. The partial output file is
// removed when the context is cancelled mid-encode.
func (p *Processor) ApplyOverlays(ctx context.Context, inputVideo string, overlayImages []string, outputPath, position string) error {
	if len(overlayImages) == 0 {
		return fmt.Errorf("no overlay images provided")
	}

	meta, err := Probe(inputVideo)
	if err != nil {
		return fmt.Errorf("failed to probe input video: %w", err)
	}
	totalDuration := meta.Duration.Seconds()

	listFile := filepath.Join(filepath.Dir(overlayImages[0]), "overlay_list.txt")
	durationPerImage := totalDuration / float64(len(overlayImages))
	if err := writeConcatList(overlayImages, listFile, durationPerImage); err != nil {
		return fmt.Errorf("failed to write ffmpeg concat list: %w", err)
	}
	defer os.Remove(listFile)

	x, y := overlayCoordinates(position)
	filterComplex := fmt.Sprintf(
		"[1:v]format=rgba,setpts=PTS-STARTPTS[ovr];[0:v][ovr]overlay=%s:%s", x, y)

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", inputVideo,
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-filter_complex", filterComplex,
		"-map_metadata", "0",
		"-c:a", "copy",
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "18",
		"-progress", "pipe:1",
		"-y",
		outputPath,
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open ffmpeg stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	go p.monitorProgress(stdout, totalDuration)

	var stderrOutput strings.Builder
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			stderrOutput.WriteString(scanner.Text() + "\n")
		}
	}()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			os.Remove(outputPath)
			return fmt.Errorf("encoding cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg failed: %w\n%s", err, stderrOutput.String())
	}

	return nil
}

var outTimeRegex = regexp.MustCompile(`out_time_ms=(\d+)`)

// monitorProgress parses ffmpeg's -progress output into a percentage.
func (p *Processor) monitorProgress(r io.Reader, totalDuration float64) {
	if p.progress == nil || totalDuration <= 0 {
		return
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		matches := outTimeRegex.FindStringSubmatch(scanner.Text())
		if len(matches) < 2 {
			continue
		}
		micros, err := strconv.ParseFloat(matches[1], 64)
		if err != nil {
			continue
		}
		percent := micros / 1e6 / totalDuration * 100
		if percent > 100 {
			percent = 100
		}
		p.progress(percent)
	}
}

// overlayCoordinates maps a corner preset to ffmpeg overlay filter
// expressions.
func overlayCoordinates(position string) (string, string) {
	const margin = "10"
	switch position {
	case "top-left":
		return margin, margin
	case "top-right":
		return "main_w-overlay_w-" + margin, margin
	case "bottom-right":
		return "main_w-overlay_w-" + margin, "main_h-overlay_h-" + margin
	default: // bottom-left
		return margin, "main_h-overlay_h-" + margin
	}
}

// writeConcatList produces the ffconcat playlist that paces one overlay
// frame per interval. The last frame repeats so the overlay covers the
// full clip duration.
func writeConcatList(images []string, listFile string, duration float64) error {
	var content strings.Builder
	content.WriteString("ffconcat version 1.0\n")

	for _, img := range images {
		absPath, err := filepath.Abs(img)
		if err != nil {
			return err
		}
		fmt.Fprintf(&content, "file '%s'\n", escapeConcatPath(absPath))
		fmt.Fprintf(&content, "duration %.6f\n", duration)
	}
	absPath, err := filepath.Abs(images[len(images)-1])
	if err != nil {
		return err
	}
	fmt.Fprintf(&content, "file '%s'\n", escapeConcatPath(absPath))

	return os.WriteFile(listFile, []byte(content.String()), 0644)
}

func escapeConcatPath(path string) string {
	return strings.ReplaceAll(path, `\`, `\\`)
}
