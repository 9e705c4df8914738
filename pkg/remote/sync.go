package remote

import (
	"fmt"

	"github.com/odvcencio/hist/pkg/object"
)

// CopyMissingObjects copies every object reachable from roots that dst
// does not already hold. The walk prunes at objects present in dst: a
// store holding an object holds everything it references, so nothing
// below a present object can be missing. Every payload is re-hashed
// before the write, which keeps a corrupt source from poisoning dst.
func CopyMissingObjects(src, dst *object.Store, roots []object.Hash) (int, error) {
	written := 0
	seen := make(map[object.Hash]struct{}, len(roots))
	stack := make([]object.Hash, 0, len(roots))
	stack = append(stack, roots...)

	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		if dst.Has(h) {
			continue
		}

		objType, data, err := src.Read(h)
		if err != nil {
			return written, fmt.Errorf("copy objects: read %s: %w", h.Short(), err)
		}
		if computed := object.HashObject(objType, data); computed != h {
			return written, fmt.Errorf("copy objects: %s hashes to %s", h.Short(), computed.Short())
		}
		if _, err := dst.Write(objType, data); err != nil {
			return written, fmt.Errorf("copy objects: write %s: %w", h.Short(), err)
		}
		written++

		refs, err := object.ReferencedHashes(objType, data)
		if err != nil {
			return written, fmt.Errorf("copy objects: parse %s (%s): %w", h.Short(), objType, err)
		}
		stack = append(stack, refs...)
	}

	return written, nil
}
