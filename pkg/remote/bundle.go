package remote

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"

	"github.com/odvcencio/hist/pkg/object"
	"github.com/odvcencio/hist/pkg/repo"
)

// bundleMagic opens every bundle stream and carries the format version.
const bundleMagic = "histbundle v1"

// BundleRef is one ref recorded in a bundle's table.
type BundleRef struct {
	Name string // full ref name, e.g. "refs/heads/main"
	Hash object.Hash
}

// BundleInfo reports what a bundle operation covered.
type BundleInfo struct {
	Refs    []BundleRef
	Objects int // records serialized (create) or newly ingested (unbundle)
}

// CreateBundle serializes the named refs and every object reachable
// from them into a single file at path. Ref names may be full
// ("refs/heads/main", "refs/tags/v1") or short branch/tag names; an
// empty list bundles all branches and tags. The stream layout is the
// magic line, one "<hash> <refname>" line per ref, a blank line, then
// framed "<type> <len>\x00<payload>" records, all zstd-compressed.
func CreateBundle(r *repo.Repo, path string, refNames []string) (*BundleInfo, error) {
	refs, err := bundleRefs(r, refNames)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("bundle create: no refs to bundle")
	}

	roots := make([]object.Hash, 0, len(refs))
	for _, ref := range refs {
		roots = append(roots, ref.Hash)
	}
	closure, err := r.Store.ReachableSet(roots)
	if err != nil {
		return nil, fmt.Errorf("bundle create: %w", err)
	}
	for _, ref := range refs {
		if _, ok := closure[ref.Hash]; !ok {
			return nil, fmt.Errorf("bundle create: %s for %s: %w", ref.Hash.Short(), ref.Name, object.ErrNotFound)
		}
	}
	hashes := make([]object.Hash, 0, len(closure))
	for h := range closure {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("bundle create: %w", err)
	}
	if err := writeBundle(f, r.Store, refs, hashes); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("bundle create: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("bundle create: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"file":    path,
		"refs":    len(refs),
		"objects": len(hashes),
	}).Debug("bundle created")
	return &BundleInfo{Refs: refs, Objects: len(hashes)}, nil
}

func writeBundle(dst io.Writer, store *object.Store, refs []BundleRef, hashes []object.Hash) error {
	enc, err := zstd.NewWriter(dst)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(enc)
	fmt.Fprintf(w, "%s\n", bundleMagic)
	for _, ref := range refs {
		fmt.Fprintf(w, "%s %s\n", ref.Hash, ref.Name)
	}
	w.WriteByte('\n')

	for _, h := range hashes {
		objType, data, err := store.Read(h)
		if err != nil {
			enc.Close()
			return fmt.Errorf("read %s: %w", h.Short(), err)
		}
		fmt.Fprintf(w, "%s %d\x00", objType, len(data))
		w.Write(data)
	}

	if err := w.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// Unbundle ingests every object record from the bundle at path into the
// repository's store and returns the bundled refs. Refs are reported,
// not written; the caller decides where they land. Records are hashed
// as they arrive, and every listed ref must land on an object the store
// ends up holding.
func Unbundle(r *repo.Repo, path string) (*BundleInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unbundle: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("unbundle: %w", err)
	}
	defer dec.Close()

	br := bufio.NewReader(dec)

	magic, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("unbundle: read header: %w", err)
	}
	if strings.TrimRight(magic, "\n") != bundleMagic {
		return nil, fmt.Errorf("unbundle: %s is not a hist bundle", path)
	}

	info := &BundleInfo{}
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("unbundle: read ref table: %w", err)
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			break
		}
		hash, name, ok := strings.Cut(line, " ")
		if !ok || !object.IsHexHash(hash) || name == "" {
			return nil, fmt.Errorf("unbundle: malformed ref line %q", line)
		}
		info.Refs = append(info.Refs, BundleRef{Name: name, Hash: object.Hash(hash)})
	}

	for {
		header, err := br.ReadString('\x00')
		if errors.Is(err, io.EOF) {
			if header == "" {
				break
			}
			return nil, fmt.Errorf("unbundle: truncated record header %q", header)
		}
		if err != nil {
			return nil, fmt.Errorf("unbundle: read record header: %w", err)
		}
		header = strings.TrimSuffix(header, "\x00")
		typeStr, lenStr, ok := strings.Cut(header, " ")
		if !ok {
			return nil, fmt.Errorf("unbundle: malformed record header %q", header)
		}
		objType := object.ObjectType(typeStr)
		switch objType {
		case object.TypeBlob, object.TypeTree, object.TypeCommit, object.TypeTag:
		default:
			return nil, fmt.Errorf("unbundle: unknown object type %q", typeStr)
		}
		size, err := strconv.Atoi(lenStr)
		if err != nil || size < 0 {
			return nil, fmt.Errorf("unbundle: bad record length %q", lenStr)
		}

		data := make([]byte, size)
		if _, err := io.ReadFull(br, data); err != nil {
			return nil, fmt.Errorf("unbundle: read record payload: %w", err)
		}

		h := object.HashObject(objType, data)
		if r.Store.Has(h) {
			continue
		}
		if _, err := r.Store.Write(objType, data); err != nil {
			return nil, fmt.Errorf("unbundle: write %s: %w", h.Short(), err)
		}
		info.Objects++
	}

	for _, ref := range info.Refs {
		if !r.Store.Has(ref.Hash) {
			return nil, fmt.Errorf("unbundle: bundle is missing %s for %s: %w", ref.Hash.Short(), ref.Name, object.ErrNotFound)
		}
	}

	logrus.WithFields(logrus.Fields{
		"file":    path,
		"refs":    len(info.Refs),
		"objects": info.Objects,
	}).Debug("bundle ingested")
	return info, nil
}

// bundleRefs resolves the requested ref names to their table entries.
// Annotated tag refs keep the tag object hash so unbundling reproduces
// the tag itself.
func bundleRefs(r *repo.Repo, refNames []string) ([]BundleRef, error) {
	if len(refNames) == 0 {
		all, err := r.ListRefs("")
		if err != nil {
			return nil, fmt.Errorf("bundle create: list refs: %w", err)
		}
		refs := make([]BundleRef, 0, len(all))
		for name, h := range all {
			if !strings.HasPrefix(name, "heads/") && !strings.HasPrefix(name, "tags/") {
				continue
			}
			refs = append(refs, BundleRef{Name: "refs/" + name, Hash: h})
		}
		sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
		return refs, nil
	}

	refs := make([]BundleRef, 0, len(refNames))
	for _, name := range refNames {
		ref, err := resolveBundleRef(r, name)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func resolveBundleRef(r *repo.Repo, name string) (BundleRef, error) {
	if strings.HasPrefix(name, "refs/") {
		h, err := r.ResolveRef(name)
		if err != nil {
			return BundleRef{}, fmt.Errorf("bundle create: %q: %w", name, repo.ErrUnresolvableRef)
		}
		return BundleRef{Name: name, Hash: h}, nil
	}
	if h, err := r.ResolveRef("refs/heads/" + name); err == nil {
		return BundleRef{Name: "refs/heads/" + name, Hash: h}, nil
	}
	if h, err := r.ResolveRef("refs/tags/" + name); err == nil {
		return BundleRef{Name: "refs/tags/" + name, Hash: h}, nil
	}
	return BundleRef{}, fmt.Errorf("bundle create: %q: %w", name, repo.ErrUnresolvableRef)
}
