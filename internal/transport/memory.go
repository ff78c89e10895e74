package transport

import (
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"
)

// Builds a fully connected in-process mesh of n nodes over net.Pipe pairs.
// Index i of the result is node i.
func NewMemoryMesh(namespace []string, n int, opts Options) (meshes []*Mesh, err error) {
	if n < 2 {
		err = fmt.Errorf("memory mesh needs at least 2 nodes, got %d", n)
		return
	}

	meshes = make([]*Mesh, n)
	for i := range meshes {
		meshes[i] = newMesh(namespace, int64(i))
	}

	for low := 0; low < n; low++ {
		for high := low + 1; high < n; high++ {
			dialSide, acceptSide := net.Pipe()

			var dialed, accepted *peer
			var group errgroup.Group
			group.Go(func() (err error) {
				dialed, err = handshake(dialSide, int64(high), true, opts.Secret)
				return
			})
			group.Go(func() (err error) {
				accepted, err = handshake(acceptSide, int64(low), false, opts.Secret)
				return
			})
			err = group.Wait()
			if err != nil {
				_ = dialSide.Close()
				_ = acceptSide.Close()
				for _, mesh := range meshes {
					_ = mesh.Close()
				}
				meshes = nil
				err = fmt.Errorf("failed linking nodes %d and %d: %w", low, high, err)
				return
			}

			meshes[high].peers[int64(low)] = dialed
			meshes[low].peers[int64(high)] = accepted
		}
	}
	return
}
