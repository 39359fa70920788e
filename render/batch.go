package render

import "story-video-pipeline/timeline"

// SplitIntoBatches partitions the clip list into consecutive batches of
// at most limit clips. Sizes are balanced across ceil(n/limit) batches
// so no batch ends up with a tiny remainder; a long transition graph in
// a single ffmpeg process degrades badly past the limit.
func SplitIntoBatches(clips []*timeline.ClipConfig, limit int) [][]*timeline.ClipConfig {
	if len(clips) == 0 || limit <= 0 {
		return nil
	}
	batchCount := (len(clips) + limit - 1) / limit
	batchSize := (len(clips) + batchCount - 1) / batchCount

	var batches [][]*timeline.ClipConfig
	for start := 0; start < len(clips); start += batchSize {
		end := start + batchSize
		if end > len(clips) {
			end = len(clips)
		}
		batches = append(batches, clips[start:end])
	}
	return batches
}
