package overlayjob

// Stage names emitted by the processing pipeline, in pipeline order.
const (
	StageInit     = "init"
	StageMetadata = "metadata"
	StageActivity = "activity"
	StageSync     = "sync"
	StageGPS      = "gps"
	StageOverlay  = "overlay"
	StageOutput   = "output"
	StageEncoding = "encoding"
	StageComplete = "complete"
)

var stageLabels = map[string]string{
	StageInit:     "Initializing",
	StageMetadata: "Reading video metadata",
	StageActivity: "Loading activity",
	StageSync:     "Synchronizing video and track",
	StageGPS:      "Loading GPS data",
	StageOverlay:  "Rendering overlays",
	StageOutput:   "Preparing output",
	StageEncoding: "Encoding video",
	StageComplete: "Complete",
}

// StageLabel returns the display label for a stage. Stage names the
// client does not know are shown verbatim, since the backend's stage
// set may evolve independently.
func StageLabel(stage string) string {
	if label, ok := stageLabels[stage]; ok {
		return label
	}
	return stage
}
