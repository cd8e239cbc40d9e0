package asset

import (
	"math"
)

// Blob layout constants. Both blobs are little endian.
const (
	// BVHMagic tags a hierarchy blob.
	BVHMagic = "NBVH"
	// MeshMagic tags a cluster/mesh blob.
	MeshMagic = "NMSH"
	// FormatVersion is the only blob version understood by this package.
	FormatVersion uint32 = 1

	// BVHHeaderSize is the byte size of the hierarchy blob header (magic, version, node count, root index).
	BVHHeaderSize = 16
	// BVHNodeSize is the byte size of one serialized BVHNode.
	BVHNodeSize = 48

	// MeshHeaderSize is the byte size of the mesh blob header (magic, version, cluster, vertex and index counts, reserved).
	MeshHeaderSize = 24
	// ClusterSize is the byte size of one serialized Cluster.
	ClusterSize = 48
	// VertexSize is the byte size of one position (3 x f32).
	VertexSize = 12
	// IndexSize is the byte size of one cluster-local index.
	IndexSize = 4

	// MaxClusterTriangles bounds the triangle count of a single cluster.
	MaxClusterTriangles = 128

	// MaxClusters bounds the cluster count so cluster ids fit the 25 bits a visibility cell reserves for them.
	MaxClusters = 1 << 25

	// InvalidIndex marks an absent node or cluster reference.
	InvalidIndex uint32 = 0xFFFFFFFF
)

// BVHNode is one node of the cluster hierarchy. The node's own cluster range is its
// level-of-detail representation; a node without children is a leaf.
type BVHNode struct {
	Center       [3]float32 // offset  0: bounds center (object space)
	LODError     float32    // offset 12: object-space error of this node's clusters
	Extent       [3]float32 // offset 16: bounds half size
	MipLevel     uint32     // offset 28: LOD level, 0 at the leaves, growing toward the root
	FirstChild   uint32     // offset 32
	ChildCount   uint32     // offset 36
	FirstCluster uint32     // offset 40
	ClusterCount uint32     // offset 44
}

// IsLeaf reports whether the node has no children.
func (n BVHNode) IsLeaf() bool {
	return n.ChildCount == 0
}

// Radius returns the radius of the sphere enclosing the node bounds.
func (n BVHNode) Radius() float32 {
	return boundsRadius(n.Extent)
}

// Cluster is a fixed-size group of triangles with its own bounds and LOD error.
// Indices are local to the cluster's vertex range.
type Cluster struct {
	Center        [3]float32 // offset  0
	LODError      float32    // offset 12
	Extent        [3]float32 // offset 16
	TriangleCount uint32     // offset 28
	VertexOffset  uint32     // offset 32
	VertexCount   uint32     // offset 36
	IndexOffset   uint32     // offset 40
	_reserved     uint32     // offset 44
}

// Radius returns the radius of the sphere enclosing the cluster bounds.
func (c Cluster) Radius() float32 {
	return boundsRadius(c.Extent)
}

// BVH is the decoded cluster hierarchy.
type BVH struct {
	Root  uint32
	Nodes []BVHNode
}

// Mesh is the decoded cluster/mesh data ("NaniteMesh").
type Mesh struct {
	Clusters []Cluster
	Vertices [][3]float32
	Indices  []uint32
}

// TriangleCount returns the sum of all cluster triangle counts.
func (m *Mesh) TriangleCount() int {
	total := 0
	for _, c := range m.Clusters {
		total += int(c.TriangleCount)
	}
	return total
}

// Depth returns the number of levels in the hierarchy, counting the root as level 1.
func (b *BVH) Depth() int {
	if len(b.Nodes) == 0 || int(b.Root) >= len(b.Nodes) {
		return 0
	}
	levels := make([]int, len(b.Nodes))
	levels[b.Root] = 1
	depth := 1
	// children are stored after their parent, so one forward pass settles every level
	for i, n := range b.Nodes {
		if levels[i] == 0 {
			continue
		}
		for c := n.FirstChild; c < n.FirstChild+n.ChildCount; c++ {
			levels[c] = levels[i] + 1
			depth = max(depth, levels[c])
		}
	}
	return depth
}

// AssignMipLevels fills in the LOD level of every node when the hierarchy was authored without
// them (all zero): a leaf is level 0 and a parent sits one above its highest child. Hierarchies
// that carry levels are left alone.
//
// Returns:
//   - bool: true when levels were assigned
func (b *BVH) AssignMipLevels() bool {
	for _, n := range b.Nodes {
		if n.MipLevel != 0 {
			return false
		}
	}
	assigned := false
	// children are stored after their parent, so a backward pass sees every child first
	for i := len(b.Nodes) - 1; i >= 0; i-- {
		n := &b.Nodes[i]
		level := uint32(0)
		for c := n.FirstChild; c < n.FirstChild+n.ChildCount; c++ {
			level = max(level, b.Nodes[c].MipLevel+1)
		}
		n.MipLevel = level
		assigned = assigned || level != 0
	}
	return assigned
}

func boundsRadius(extent [3]float32) float32 {
	return float32(math.Sqrt(float64(extent[0]*extent[0] + extent[1]*extent[1] + extent[2]*extent[2])))
}
