package asset

import (
	"fmt"
)

// Validate checks the structural rules that the culling and raster stages rely on:
// every index is in range, children are stored after their parent and every
// cluster fits the triangle limit and references its own vertex range only.
func Validate(b *BVH, m *Mesh) error {
	nodeCount := uint64(len(b.Nodes))
	clusterCount := uint64(len(m.Clusters))

	if clusterCount > MaxClusters {
		return fmt.Errorf("%w: %d clusters exceeds %d", ErrInvalidAsset, clusterCount, MaxClusters)
	}
	if uint64(b.Root) >= nodeCount {
		return fmt.Errorf("%w: root index %d out of %d nodes", ErrInvalidAsset, b.Root, nodeCount)
	}
	for i, n := range b.Nodes {
		if n.ChildCount > 0 {
			if n.FirstChild <= uint32(i) {
				return fmt.Errorf("%w: node %d: child %d is not stored after its parent", ErrInvalidAsset, i, n.FirstChild)
			}
			if uint64(n.FirstChild)+uint64(n.ChildCount) > nodeCount {
				return fmt.Errorf("%w: node %d: children [%d,+%d) out of %d nodes", ErrInvalidAsset, i, n.FirstChild, n.ChildCount, nodeCount)
			}
		}
		if uint64(n.FirstCluster)+uint64(n.ClusterCount) > clusterCount {
			return fmt.Errorf("%w: node %d: clusters [%d,+%d) out of %d clusters", ErrInvalidAsset, i, n.FirstCluster, n.ClusterCount, clusterCount)
		}
		if n.LODError < 0 {
			return fmt.Errorf("%w: node %d: negative lod error", ErrInvalidAsset, i)
		}
	}

	vertexCount := uint64(len(m.Vertices))
	indexCount := uint64(len(m.Indices))
	for i, c := range m.Clusters {
		if c.TriangleCount > MaxClusterTriangles {
			return fmt.Errorf("%w: cluster %d: %d triangles exceeds %d", ErrInvalidAsset, i, c.TriangleCount, MaxClusterTriangles)
		}
		if uint64(c.VertexOffset)+uint64(c.VertexCount) > vertexCount {
			return fmt.Errorf("%w: cluster %d: vertices out of range", ErrInvalidAsset, i)
		}
		end := uint64(c.IndexOffset) + uint64(c.TriangleCount)*3
		if end > indexCount {
			return fmt.Errorf("%w: cluster %d: indices out of range", ErrInvalidAsset, i)
		}
		for _, idx := range m.Indices[c.IndexOffset:end] {
			if idx >= c.VertexCount {
				return fmt.Errorf("%w: cluster %d: local index %d >= %d vertices", ErrInvalidAsset, i, idx, c.VertexCount)
			}
		}
	}
	return nil
}
