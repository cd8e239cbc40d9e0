package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/Carmen-Shannon/oxy-nano/engine/asset"
	"github.com/Carmen-Shannon/oxy-nano/engine/profiler"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer/vkprobe"
	"github.com/Carmen-Shannon/oxy-nano/engine/scene"
	"github.com/olekukonko/tablewriter"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader(header)
	return table
}

// writeRoundTable writes one row per cull round and the frame totals as footer.
func writeRoundTable(w io.Writer, stats scene.FrameStats) {
	table := newTable(w, "Round", "Visited", "Culled", "Accepted", "Clamped", "Pushed", "Clusters", "Queue drops", "Batch drops")
	var visited, culled, pushed, emitted uint32
	for _, r := range stats.Rounds {
		table.Append([]string{
			fmt.Sprintf("%d", r.Round),
			fmt.Sprintf("%d", r.Visited),
			fmt.Sprintf("%d", r.Culled),
			fmt.Sprintf("%d", r.Accepted),
			fmt.Sprintf("%d", r.Clamped),
			fmt.Sprintf("%d", r.Pushed),
			fmt.Sprintf("%d", r.EmittedClusters),
			fmt.Sprintf("%d", r.QueueOverflow),
			fmt.Sprintf("%d", r.BatchOverflow),
		})
		visited += r.Visited
		culled += r.Culled
		pushed += r.Pushed
		emitted += r.EmittedClusters
	}
	table.SetFooter([]string{
		"TOTAL",
		fmt.Sprintf("%d", visited),
		fmt.Sprintf("%d", culled),
		fmt.Sprintf("%d", stats.Accepted()),
		fmt.Sprintf("%d", stats.Clamped()),
		fmt.Sprintf("%d", pushed),
		fmt.Sprintf("%d", emitted),
		"", "",
	})
	table.Render()
}

// writeFrameTable writes the partition, raster and resolve counters of a frame.
func writeFrameTable(w io.Writer, stats scene.FrameStats) {
	overflows := "none"
	if stats.Overflowed() {
		overflows = strings.Join(stats.Overflows, ", ")
	}
	table := newTable(w, "Counter", "Value")
	table.AppendBulk([][]string{
		{"Frame", fmt.Sprintf("%d", stats.Frame)},
		{"Cull rounds", fmt.Sprintf("%d", stats.RoundsRun)},
		{"Batch clusters", fmt.Sprintf("%d", stats.BatchClusters)},
		{"Partition culled", fmt.Sprintf("%d", stats.PartitionCulled)},
		{"HW clusters", fmt.Sprintf("%d", stats.HWClusters)},
		{"SW clusters", fmt.Sprintf("%d", stats.SWClusters)},
		{"HW estimated at cull", fmt.Sprintf("%d", stats.HWEstimated)},
		{"Covered pixels", fmt.Sprintf("%d", stats.CoveredPixels)},
		{"Overflows", overflows},
		{"Regrown", fmt.Sprintf("%d", stats.Regrown)},
		{"Render time", stats.Duration.String()},
	})
	table.Render()
}

func displayFrameStats(stats scene.FrameStats) {
	var buf bytes.Buffer
	writeRoundTable(&buf, stats)
	writeFrameTable(&buf, stats)
	logger.Noticef("frame statistics\n%s", buf.String())
}

func displayVisitLog(stats scene.FrameStats) {
	var buf bytes.Buffer
	table := newTable(&buf, "Round", "Nodes")
	byRound := make(map[uint32][]string)
	for _, v := range stats.VisitLog {
		byRound[v.Round] = append(byRound[v.Round], fmt.Sprintf("%d", v.Node))
	}
	for round := 0; round < stats.RoundsRun; round++ {
		table.Append([]string{fmt.Sprintf("%d", round), strings.Join(byRound[uint32(round)], " ")})
	}
	if stats.VisitLogTruncated > 0 {
		table.SetFooter([]string{"DROPPED", fmt.Sprintf("%d", stats.VisitLogTruncated)})
	}
	table.Render()
	logger.Noticef("visited nodes\n%s", buf.String())
}

func displaySummary(sum profiler.Summary) {
	var buf bytes.Buffer
	table := newTable(&buf, "Frames", "Min", "Mean", "Max", "HW clusters", "SW clusters", "Overflowed frames")
	table.Append([]string{
		fmt.Sprintf("%d", sum.Frames),
		sum.Min.String(),
		sum.Average().String(),
		sum.Max.String(),
		fmt.Sprintf("%d", sum.HWClusters),
		fmt.Sprintf("%d", sum.SWClusters),
		fmt.Sprintf("%d", sum.OverflowCount),
	})
	table.Render()
	logger.Noticef("render summary\n%s", buf.String())
}

// writeAssetTable summarizes a loaded store.
func writeAssetTable(w io.Writer, store *asset.Store) {
	leaves, maxChildren, maxError := 0, uint32(0), float32(0)
	for _, n := range store.BVH.Nodes {
		if n.IsLeaf() {
			leaves++
		}
		maxChildren = max(maxChildren, n.ChildCount)
		maxError = max(maxError, n.LODError)
	}
	maxTriangles := uint32(0)
	for _, c := range store.Mesh.Clusters {
		maxTriangles = max(maxTriangles, c.TriangleCount)
	}

	table := newTable(w, "Property", "Value")
	table.AppendBulk([][]string{
		{"Nodes", fmt.Sprintf("%d", len(store.BVH.Nodes))},
		{"Leaves", fmt.Sprintf("%d", leaves)},
		{"Depth", fmt.Sprintf("%d", store.BVH.Depth())},
		{"Max children", fmt.Sprintf("%d", maxChildren)},
		{"Root LOD error", fmt.Sprintf("%g", store.BVH.Nodes[store.BVH.Root].LODError)},
		{"Max LOD error", fmt.Sprintf("%g", maxError)},
		{"Clusters", fmt.Sprintf("%d", len(store.Mesh.Clusters))},
		{"Max cluster triangles", fmt.Sprintf("%d", maxTriangles)},
		{"Triangles", fmt.Sprintf("%d", store.Mesh.TriangleCount())},
		{"Vertices", fmt.Sprintf("%d", len(store.Mesh.Vertices))},
		{"BVH blob", fmt.Sprintf("%d bytes", len(store.BVHBlob))},
		{"Mesh blob", fmt.Sprintf("%d bytes", len(store.MeshBlob))},
	})
	table.Render()
}

// writeDeviceTable lists probed devices.
func writeDeviceTable(w io.Writer, devices []vkprobe.DeviceInfo) {
	table := newTable(w, "#", "Name", "Type", "API", "Driver", "shaderInt64", "atomic_int64", "bufferInt64Atomics", "Usable")
	for i, d := range devices {
		table.Append([]string{
			fmt.Sprintf("%d", i),
			d.Name,
			d.Type,
			vkprobe.VersionString(d.APIVersion),
			fmt.Sprintf("%#x", d.DriverVersion),
			fmt.Sprintf("%t", d.ShaderInt64),
			fmt.Sprintf("%t", d.AtomicInt64Extension),
			fmt.Sprintf("%t", d.ShaderBufferInt64Atomics),
			fmt.Sprintf("%t", d.Int64Atomics()),
		})
	}
	table.Render()
}
