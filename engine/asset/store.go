package asset

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"
)

// Store holds the immutable hierarchy and cluster data of one scene, both decoded and
// in the blob form that is uploaded to the device.
type Store struct {
	BVH  *BVH
	Mesh *Mesh

	BVHBlob  []byte
	MeshBlob []byte
}

// NewStore decodes and validates a hierarchy blob and a mesh blob. A hierarchy without LOD levels
// gets them assigned, and the uploaded blob is re-encoded to carry them.
//
// Parameters:
//   - bvhBlob: the raw hierarchy blob
//   - meshBlob: the raw cluster/mesh blob
//
// Returns:
//   - *Store: the validated store
//   - error: a wrapped decode or validation error
func NewStore(bvhBlob, meshBlob []byte) (*Store, error) {
	b, err := DecodeBVH(bvhBlob)
	if err != nil {
		return nil, err
	}
	m, err := DecodeMesh(meshBlob)
	if err != nil {
		return nil, err
	}
	if err := Validate(b, m); err != nil {
		return nil, err
	}
	if b.AssignMipLevels() {
		bvhBlob = EncodeBVH(b)
	}
	return &Store{BVH: b, Mesh: m, BVHBlob: bvhBlob, MeshBlob: meshBlob}, nil
}

// NewStoreFromData encodes in-memory hierarchy and mesh data and validates the result.
func NewStoreFromData(b *BVH, m *Mesh) (*Store, error) {
	return NewStore(EncodeBVH(b), EncodeMesh(m))
}

// LoadStore reads both blobs concurrently and builds a Store from them.
//
// Parameters:
//   - ctx: cancels the pending reads
//   - bvhPath: path of the hierarchy blob
//   - meshPath: path of the cluster/mesh blob
//
// Returns:
//   - *Store: the validated store
//   - error: the first read, decode or validation error
func LoadStore(ctx context.Context, bvhPath, meshPath string) (*Store, error) {
	var bvhBlob, meshBlob []byte

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := readBlob(ctx, bvhPath)
		bvhBlob = data
		return err
	})
	g.Go(func() error {
		data, err := readBlob(ctx, meshPath)
		meshBlob = data
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s, err := NewStore(bvhBlob, meshBlob)
	if err != nil {
		return nil, fmt.Errorf("asset: loading %s + %s: %w", bvhPath, meshPath, err)
	}
	return s, nil
}

func readBlob(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("asset: reading %s: %w", path, err)
	}
	return data, nil
}
