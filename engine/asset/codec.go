package asset

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrBadMagic is returned when a blob does not start with the expected tag.
	ErrBadMagic = errors.New("asset: bad magic")
	// ErrShortBlob is returned when a blob is smaller than its header declares.
	ErrShortBlob = errors.New("asset: blob too short")
	// ErrUnsupportedVersion is returned for blobs written by a newer format.
	ErrUnsupportedVersion = errors.New("asset: unsupported version")
	// ErrInvalidAsset is returned when decoded data breaks a structural rule.
	ErrInvalidAsset = errors.New("asset: invalid asset")
)

// DecodeBVH parses a hierarchy blob.
//
// Parameters:
//   - blob: the raw blob bytes
//
// Returns:
//   - *BVH: the decoded hierarchy
//   - error: ErrBadMagic, ErrShortBlob, ErrUnsupportedVersion or ErrInvalidAsset (wrapped)
func DecodeBVH(blob []byte) (*BVH, error) {
	if len(blob) < BVHHeaderSize {
		return nil, fmt.Errorf("%w: bvh header needs %d bytes, got %d", ErrShortBlob, BVHHeaderSize, len(blob))
	}
	if string(blob[0:4]) != BVHMagic {
		return nil, fmt.Errorf("%w: bvh blob starts with %q", ErrBadMagic, blob[0:4])
	}
	if v := binary.LittleEndian.Uint32(blob[4:]); v != FormatVersion {
		return nil, fmt.Errorf("%w: bvh version %d", ErrUnsupportedVersion, v)
	}
	nodeCount := binary.LittleEndian.Uint32(blob[8:])
	root := binary.LittleEndian.Uint32(blob[12:])

	need := uint64(BVHHeaderSize) + uint64(nodeCount)*BVHNodeSize
	if uint64(len(blob)) < need {
		return nil, fmt.Errorf("%w: bvh declares %d nodes (%d bytes), got %d bytes", ErrShortBlob, nodeCount, need, len(blob))
	}
	if nodeCount == 0 {
		return nil, fmt.Errorf("%w: bvh has no nodes", ErrInvalidAsset)
	}

	b := &BVH{Root: root, Nodes: make([]BVHNode, nodeCount)}
	for i := range b.Nodes {
		b.Nodes[i] = decodeNode(blob[BVHHeaderSize+i*BVHNodeSize:])
	}
	return b, nil
}

// EncodeBVH serializes a hierarchy into its blob form.
func EncodeBVH(b *BVH) []byte {
	buf := make([]byte, BVHHeaderSize+len(b.Nodes)*BVHNodeSize)
	copy(buf[0:4], BVHMagic)
	binary.LittleEndian.PutUint32(buf[4:], FormatVersion)
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(b.Nodes)))
	binary.LittleEndian.PutUint32(buf[12:], b.Root)
	for i, n := range b.Nodes {
		off := BVHHeaderSize + i*BVHNodeSize
		putVec3(buf[off:], n.Center)
		putF32(buf[off+12:], n.LODError)
		putVec3(buf[off+16:], n.Extent)
		binary.LittleEndian.PutUint32(buf[off+28:], n.MipLevel)
		binary.LittleEndian.PutUint32(buf[off+32:], n.FirstChild)
		binary.LittleEndian.PutUint32(buf[off+36:], n.ChildCount)
		binary.LittleEndian.PutUint32(buf[off+40:], n.FirstCluster)
		binary.LittleEndian.PutUint32(buf[off+44:], n.ClusterCount)
	}
	return buf
}

// DecodeMesh parses a cluster/mesh blob.
//
// Parameters:
//   - blob: the raw blob bytes
//
// Returns:
//   - *Mesh: the decoded clusters, vertices and indices
//   - error: ErrBadMagic, ErrShortBlob or ErrUnsupportedVersion (wrapped)
func DecodeMesh(blob []byte) (*Mesh, error) {
	if len(blob) < MeshHeaderSize {
		return nil, fmt.Errorf("%w: mesh header needs %d bytes, got %d", ErrShortBlob, MeshHeaderSize, len(blob))
	}
	if string(blob[0:4]) != MeshMagic {
		return nil, fmt.Errorf("%w: mesh blob starts with %q", ErrBadMagic, blob[0:4])
	}
	if v := binary.LittleEndian.Uint32(blob[4:]); v != FormatVersion {
		return nil, fmt.Errorf("%w: mesh version %d", ErrUnsupportedVersion, v)
	}
	clusterCount := binary.LittleEndian.Uint32(blob[8:])
	vertexCount := binary.LittleEndian.Uint32(blob[12:])
	indexCount := binary.LittleEndian.Uint32(blob[16:])

	need := uint64(MeshHeaderSize) +
		uint64(clusterCount)*ClusterSize +
		uint64(vertexCount)*VertexSize +
		uint64(indexCount)*IndexSize
	if uint64(len(blob)) < need {
		return nil, fmt.Errorf("%w: mesh declares %d bytes, got %d", ErrShortBlob, need, len(blob))
	}

	m := &Mesh{
		Clusters: make([]Cluster, clusterCount),
		Vertices: make([][3]float32, vertexCount),
		Indices:  make([]uint32, indexCount),
	}
	off := MeshHeaderSize
	for i := range m.Clusters {
		m.Clusters[i] = decodeCluster(blob[off:])
		off += ClusterSize
	}
	for i := range m.Vertices {
		m.Vertices[i] = getVec3(blob[off:])
		off += VertexSize
	}
	for i := range m.Indices {
		m.Indices[i] = binary.LittleEndian.Uint32(blob[off:])
		off += IndexSize
	}
	return m, nil
}

// EncodeMesh serializes clusters, vertices and indices into the mesh blob form.
func EncodeMesh(m *Mesh) []byte {
	size := MeshHeaderSize + len(m.Clusters)*ClusterSize + len(m.Vertices)*VertexSize + len(m.Indices)*IndexSize
	buf := make([]byte, size)
	copy(buf[0:4], MeshMagic)
	binary.LittleEndian.PutUint32(buf[4:], FormatVersion)
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(m.Clusters)))
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(m.Vertices)))
	binary.LittleEndian.PutUint32(buf[16:], uint32(len(m.Indices)))

	off := MeshHeaderSize
	for _, c := range m.Clusters {
		putVec3(buf[off:], c.Center)
		putF32(buf[off+12:], c.LODError)
		putVec3(buf[off+16:], c.Extent)
		binary.LittleEndian.PutUint32(buf[off+28:], c.TriangleCount)
		binary.LittleEndian.PutUint32(buf[off+32:], c.VertexOffset)
		binary.LittleEndian.PutUint32(buf[off+36:], c.VertexCount)
		binary.LittleEndian.PutUint32(buf[off+40:], c.IndexOffset)
		off += ClusterSize
	}
	for _, v := range m.Vertices {
		putVec3(buf[off:], v)
		off += VertexSize
	}
	for _, idx := range m.Indices {
		binary.LittleEndian.PutUint32(buf[off:], idx)
		off += IndexSize
	}
	return buf
}

func decodeNode(b []byte) BVHNode {
	return BVHNode{
		Center:       getVec3(b),
		LODError:     getF32(b[12:]),
		Extent:       getVec3(b[16:]),
		MipLevel:     binary.LittleEndian.Uint32(b[28:]),
		FirstChild:   binary.LittleEndian.Uint32(b[32:]),
		ChildCount:   binary.LittleEndian.Uint32(b[36:]),
		FirstCluster: binary.LittleEndian.Uint32(b[40:]),
		ClusterCount: binary.LittleEndian.Uint32(b[44:]),
	}
}

func decodeCluster(b []byte) Cluster {
	return Cluster{
		Center:        getVec3(b),
		LODError:      getF32(b[12:]),
		Extent:        getVec3(b[16:]),
		TriangleCount: binary.LittleEndian.Uint32(b[28:]),
		VertexOffset:  binary.LittleEndian.Uint32(b[32:]),
		VertexCount:   binary.LittleEndian.Uint32(b[36:]),
		IndexOffset:   binary.LittleEndian.Uint32(b[40:]),
	}
}

func getF32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func getVec3(b []byte) [3]float32 {
	return [3]float32{getF32(b), getF32(b[4:]), getF32(b[8:])}
}

func putF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func putVec3(b []byte, v [3]float32) {
	putF32(b, v[0])
	putF32(b[4:], v[1])
	putF32(b[8:], v[2])
}
