package asset

import (
	"encoding/binary"
)

// MeshLayout locates the sections of a mesh blob once it is resident in a device buffer.
type MeshLayout struct {
	ClusterCount uint32
	VertexCount  uint32
	IndexCount   uint32
	VertexBase   uint64
	IndexBase    uint64
}

// ParseMeshLayout reads the section offsets from a validated mesh blob header.
func ParseMeshLayout(blob []byte) MeshLayout {
	l := MeshLayout{
		ClusterCount: binary.LittleEndian.Uint32(blob[8:]),
		VertexCount:  binary.LittleEndian.Uint32(blob[12:]),
		IndexCount:   binary.LittleEndian.Uint32(blob[16:]),
	}
	l.VertexBase = MeshHeaderSize + uint64(l.ClusterCount)*ClusterSize
	l.IndexBase = l.VertexBase + uint64(l.VertexCount)*VertexSize
	return l
}

// NodeCount reads the node count from a hierarchy blob header.
func NodeCount(blob []byte) uint32 {
	return binary.LittleEndian.Uint32(blob[8:])
}

// RootIndex reads the root node index from a hierarchy blob header.
func RootIndex(blob []byte) uint32 {
	return binary.LittleEndian.Uint32(blob[12:])
}

// NodeAt decodes node i straight from a hierarchy blob.
func NodeAt(blob []byte, i uint32) BVHNode {
	return decodeNode(blob[BVHHeaderSize+uint64(i)*BVHNodeSize:])
}

// ClusterAt decodes cluster i straight from a mesh blob.
func ClusterAt(blob []byte, i uint32) Cluster {
	return decodeCluster(blob[MeshHeaderSize+uint64(i)*ClusterSize:])
}

// VertexAt reads vertex i from a mesh blob.
func (l MeshLayout) VertexAt(blob []byte, i uint32) [3]float32 {
	return getVec3(blob[l.VertexBase+uint64(i)*VertexSize:])
}

// IndexAt reads index i from a mesh blob.
func (l MeshLayout) IndexAt(blob []byte, i uint32) uint32 {
	return binary.LittleEndian.Uint32(blob[l.IndexBase+uint64(i)*IndexSize:])
}

// Triangle returns the three object-space positions of triangle tri of cluster c.
func (l MeshLayout) Triangle(blob []byte, c Cluster, tri uint32) [3][3]float32 {
	base := c.IndexOffset + tri*3
	return [3][3]float32{
		l.VertexAt(blob, c.VertexOffset+l.IndexAt(blob, base)),
		l.VertexAt(blob, c.VertexOffset+l.IndexAt(blob, base+1)),
		l.VertexAt(blob, c.VertexOffset+l.IndexAt(blob, base+2)),
	}
}
