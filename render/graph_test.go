package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"story-video-pipeline/config"
)

func testConfig() *config.Config {
	return config.Default()
}

func TestTransitionGraphThreeClips(t *testing.T) {
	graph := TransitionGraph([]float64{5.0, 4.6, 6.3}, 0.5, func(int) string { return "wipeleft" })

	parts := strings.Split(graph, ";")
	require.Len(t, parts, 4)

	// First junction fades in clip 2 half a second before clip 1 ends;
	// the second junction's offset accumulates the prior fade.
	assert.Equal(t,
		"[0:v][1:v]xfade=transition=wipeleft:duration=0.5:offset=4.5000[vfade1]",
		parts[0])
	assert.Equal(t,
		"[vfade1][2:v]xfade=transition=wipeleft:duration=0.5:offset=8.6000,format=yuv420p[video]",
		parts[1])
	assert.Equal(t,
		"[0:a][1:a]acrossfade=d=0.5:c1=tri:c2=tri[afade1]",
		parts[2])
	assert.Equal(t,
		"[afade1][2:a]acrossfade=d=0.5:c1=tri:c2=tri[audio]",
		parts[3])
}

func TestTransitionGraphTwoClips(t *testing.T) {
	graph := TransitionGraph([]float64{3.0, 4.0}, 0.5, func(int) string { return "circlecrop" })

	assert.Equal(t,
		"[0:v][1:v]xfade=transition=circlecrop:duration=0.5:offset=2.5000,format=yuv420p[video];"+
			"[0:a][1:a]acrossfade=d=0.5:c1=tri:c2=tri[audio]",
		graph)
}

func TestTransitionGraphStylePerJunction(t *testing.T) {
	styles := []string{"wipeup", "slidedown", "rectcrop"}
	graph := TransitionGraph([]float64{2, 2, 2, 2}, 0.5, func(i int) string { return styles[i] })

	for _, style := range styles {
		assert.Contains(t, graph, "transition="+style+":")
	}
}

func TestTransitionGraphSingleClip(t *testing.T) {
	assert.Empty(t, TransitionGraph([]float64{5.0}, 0.5, func(int) string { return "wipeleft" }))
	assert.Empty(t, TransitionGraph(nil, 0.5, func(int) string { return "wipeleft" }))
}

func TestVideoTypeCutoff(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, "short", VideoType(cfg, 45))
	assert.Equal(t, "short", VideoType(cfg, 60))
	assert.Equal(t, "standard", VideoType(cfg, 60.1))
}
