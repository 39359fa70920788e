package render

import (
	"fmt"
	"strings"
)

// xfadeStyles are the transition shapes drawn at clip junctions. One is
// picked at random per junction so consecutive cuts don't repeat the
// same move.
var xfadeStyles = []string{
	"wipeleft", "wiperight", "wipeup", "wipedown",
	"slideleft", "slideright", "slideup", "slidedown",
	"circlecrop", "rectcrop",
}

// TransitionGraph builds the filter_complex that merges n clip inputs
// into one program: an xfade chain on video and an acrossfade chain on
// audio. durations are the clip durations in input order; styleAt picks
// the xfade style for junction i. The outputs are labeled [video] and
// [audio].
//
// Each junction starts its crossfade transition seconds before the end
// of the accumulated program, so the xfade offset is the running sum of
// clip durations minus one transition per junction.
func TransitionGraph(durations []float64, transition float64, styleAt func(i int) string) string {
	if len(durations) < 2 {
		return ""
	}

	var sb strings.Builder

	offset := 0.0
	for i := 0; i < len(durations)-1; i++ {
		offset += durations[i] - transition

		in := fmt.Sprintf("[vfade%d]", i)
		if i == 0 {
			in = "[0:v]"
		}
		fmt.Fprintf(&sb, "%s[%d:v]xfade=transition=%s:duration=%g:offset=%.4f",
			in, i+1, styleAt(i), transition, offset)
		if i == len(durations)-2 {
			sb.WriteString(",format=yuv420p[video];")
		} else {
			fmt.Fprintf(&sb, "[vfade%d];", i+1)
		}
	}

	for i := 0; i < len(durations)-1; i++ {
		in := fmt.Sprintf("[afade%d]", i)
		if i == 0 {
			in = "[0:a]"
		}
		fmt.Fprintf(&sb, "%s[%d:a]acrossfade=d=%g:c1=tri:c2=tri",
			in, i+1, transition)
		if i == len(durations)-2 {
			sb.WriteString("[audio]")
		} else {
			fmt.Fprintf(&sb, "[afade%d];", i+1)
		}
	}

	return sb.String()
}
