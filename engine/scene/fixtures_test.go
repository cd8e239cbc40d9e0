package scene

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-nano/engine/asset"
	"github.com/Carmen-Shannon/oxy-nano/engine/camera"
	"github.com/Carmen-Shannon/oxy-nano/engine/renderer"
)

// ============================================================================
// Fixtures
// ============================================================================

// testPose looks down -Z at the origin from 100 units away. With a 90 degree field of view and a
// 64x64 viewport, the plane z = 0 spans [-100, 100] on both axes: 3.125 units per pixel.
var testPose = camera.Pose{
	Position: [3]float32{0, 0, 100},
	Target:   [3]float32{0, 0, 0},
	Up:       [3]float32{0, 1, 0},
}

const testSize = 64

// fixture builds a hierarchy and its clusters by hand.
type fixture struct {
	nodes    []asset.BVHNode
	clusters []asset.Cluster
	vertices [][3]float32
	indices  []uint32
}

// addCluster appends a square of side size centered on center, parallel to the XY plane, cut into
// vertical strips of two triangles each. Returns the cluster index.
func (f *fixture) addCluster(center [3]float32, size float32, triangles int) uint32 {
	strips := (triangles + 1) / 2
	half := size / 2
	vertexBase := uint32(len(f.vertices))
	indexBase := uint32(len(f.indices))

	for j := 0; j <= strips; j++ {
		x := center[0] - half + size*float32(j)/float32(strips)
		f.vertices = append(f.vertices,
			[3]float32{x, center[1] - half, center[2]},
			[3]float32{x, center[1] + half, center[2]},
		)
	}
	for i := 0; i < triangles; i++ {
		j := uint32(i / 2)
		b0, t0, b1, t1 := 2*j, 2*j+1, 2*j+2, 2*j+3
		if i%2 == 0 {
			f.indices = append(f.indices, b0, b1, t1)
		} else {
			f.indices = append(f.indices, b0, t1, t0)
		}
	}

	f.clusters = append(f.clusters, asset.Cluster{
		Center:        center,
		Extent:        [3]float32{half, half, 0},
		TriangleCount: uint32(triangles),
		VertexOffset:  vertexBase,
		VertexCount:   uint32(2 * (strips + 1)),
		IndexOffset:   indexBase,
	})
	return uint32(len(f.clusters) - 1)
}

// addNode appends a node and returns its index.
func (f *fixture) addNode(n asset.BVHNode) uint32 {
	f.nodes = append(f.nodes, n)
	return uint32(len(f.nodes) - 1)
}

// leaf returns a leaf node bounding exactly one cluster.
func (f *fixture) leaf(cluster uint32) asset.BVHNode {
	c := f.clusters[cluster]
	return asset.BVHNode{Center: c.Center, Extent: c.Extent, FirstCluster: cluster, ClusterCount: 1}
}

func (f *fixture) store(t *testing.T) *asset.Store {
	t.Helper()
	s, err := asset.NewStoreFromData(
		&asset.BVH{Root: 0, Nodes: f.nodes},
		&asset.Mesh{Clusters: f.clusters, Vertices: f.vertices, Indices: f.indices},
	)
	if err != nil {
		t.Fatalf("NewStoreFromData: %v", err)
	}
	return s
}

// singleVisibleCluster: a root with two leaf children, one 10-triangle cluster in view at the
// origin and one far outside the frustum.
func singleVisibleCluster(t *testing.T) *asset.Store {
	var f fixture
	visible := f.addCluster([3]float32{0, 0, 0}, 40, 10)
	hidden := f.addCluster([3]float32{1000, 0, 0}, 20, 2)
	f.addNode(asset.BVHNode{Extent: [3]float32{1200, 400, 1}, LODError: 1000, FirstChild: 1, ChildCount: 2})
	f.addNode(f.leaf(visible))
	f.addNode(f.leaf(hidden))
	return f.store(t)
}

// chain is a hierarchy of depth levels: every node has one child and one cluster of its own, and
// every interior node is far too coarse for the error threshold.
func chain(t *testing.T, levels int, rootError float32) *asset.Store {
	var f fixture
	for i := 0; i < levels; i++ {
		c := f.addCluster([3]float32{0, 0, 0}, 20, 2)
		n := asset.BVHNode{Extent: [3]float32{50, 50, 1}, FirstCluster: c, ClusterCount: 1}
		if i < levels-1 {
			n.LODError = 1000
			if i == 0 {
				n.LODError = rootError
			}
			n.FirstChild = uint32(i + 1)
			n.ChildCount = 1
		}
		f.addNode(n)
	}
	return f.store(t)
}

// fanOut is a root with eight small leaf children in a row across the view.
func fanOut(t *testing.T) *asset.Store {
	var f fixture
	f.addNode(asset.BVHNode{Extent: [3]float32{100, 100, 1}, LODError: 1000, FirstChild: 1, ChildCount: 8})
	for i := 0; i < 8; i++ {
		c := f.addCluster([3]float32{-70 + 20*float32(i), 0, 0}, 16, 2)
		f.addNode(f.leaf(c))
	}
	return f.store(t)
}

// overlapping: two leaf clusters covering the center of the view, the near one 10 units closer to
// the camera. nearFirst selects which of the two gets cluster index 0.
func overlapping(t *testing.T, nearFirst bool) (*asset.Store, uint32) {
	var f fixture
	zs := [2]float32{0, 10}
	if nearFirst {
		zs = [2]float32{10, 0}
	}
	a := f.addCluster([3]float32{0, 0, zs[0]}, 40, 2)
	b := f.addCluster([3]float32{0, 0, zs[1]}, 40, 2)
	f.addNode(asset.BVHNode{Center: [3]float32{0, 0, 5}, Extent: [3]float32{20, 20, 5}, LODError: 1000, FirstChild: 1, ChildCount: 2})
	f.addNode(f.leaf(a))
	f.addNode(f.leaf(b))
	if nearFirst {
		return f.store(t), a
	}
	return f.store(t), b
}

// grid is a dense 8x8 field of 8-triangle clusters under one root, rendered at two depths.
func grid(t *testing.T) *asset.Store {
	var f fixture
	f.addNode(asset.BVHNode{Extent: [3]float32{100, 100, 10}, LODError: 1000, FirstChild: 1, ChildCount: 64})
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			z := float32((x + y) % 3 * 4)
			c := f.addCluster([3]float32{-84 + 24*float32(x), -84 + 24*float32(y), z}, 30, 8)
			f.addNode(f.leaf(c))
		}
	}
	return f.store(t)
}

func newTestRenderer(t *testing.T, options ...renderer.RendererBuilderOption) renderer.Renderer {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeSoftware, options...)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(r.Release)
	return r
}

// newTestScene renders store with testPose onto a 64x64 viewport, with the model unrotated.
func newTestScene(t *testing.T, r renderer.Renderer, store *asset.Store, options ...SceneBuilderOption) *scene {
	t.Helper()
	cam := camera.NewCamera(camera.WithPose(testPose), camera.WithClip(1, 1000))
	base := []SceneBuilderOption{WithSize(testSize, testSize), WithCamera(cam), WithModelRotation(0)}
	s, err := NewScene(r, store, append(base, options...)...)
	if err != nil {
		t.Fatalf("NewScene: %v", err)
	}
	t.Cleanup(s.Release)
	return s.(*scene)
}

func renderOnce(t *testing.T, s Scene) (FrameStats, VisBuffer) {
	t.Helper()
	stats, err := s.RenderFrame()
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	vis, err := s.ReadVisBuffer()
	if err != nil {
		t.Fatalf("ReadVisBuffer: %v", err)
	}
	return stats, vis
}
