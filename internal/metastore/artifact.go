package metastore

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/treasuryhq/treasury/internal/hasher"
)

// artifactReadBuf is the chunk size used when comparing two candidate
// artifacts byte-for-byte.
const artifactReadBuf = 64 * 1024

// PlaceArtifact moves outputPath into the artifacts directory under
// its content-addressed name, per §4.3's candidate-path protocol. If
// an existing artifact with identical content already occupies a
// candidate name, outputPath is discarded (removed) and that existing
// artifact's (prefixLen, suffixIndex) is returned instead — this is
// the dedup path.
func PlaceArtifact(outputPath, artifactsDir string, sum hasher.Sum) (prefixLen, suffixIndex int, artifactPath string, err error) {
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return 0, 0, "", fmt.Errorf("creating artifacts dir %q: %w", artifactsDir, err)
	}
	if err := ensureGitignore(artifactsDir); err != nil {
		return 0, 0, "", err
	}

	h := sum.String()
	var resolvedPath string

	gotPrefix, gotSuffix, err := resolveCandidate(h, func(pfx, sfx int) (bool, error) {
		name := candidateName(h, pfx, sfx)
		candidate := filepath.Join(artifactsDir, name)

		if _, statErr := os.Lstat(candidate); os.IsNotExist(statErr) {
			if err := os.Rename(outputPath, candidate); err != nil {
				return false, fmt.Errorf("placing artifact at %q: %w", candidate, err)
			}
			resolvedPath = candidate
			return true, nil
		}

		equal, err := filesEqual(candidate, outputPath)
		if err != nil {
			return false, err
		}
		if equal {
			os.Remove(outputPath)
			resolvedPath = candidate
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return 0, 0, "", err
	}
	return gotPrefix, gotSuffix, resolvedPath, nil
}

// ArtifactPath computes the on-disk location of an already-placed
// artifact from its content-addressing fields alone.
func ArtifactPath(artifactsDir string, sum hasher.Sum, prefixLen, suffixIndex int) string {
	return filepath.Join(artifactsDir, ArtifactFilename(sum, prefixLen, suffixIndex))
}

func ensureGitignore(artifactsDir string) error {
	path := filepath.Join(artifactsDir, ".gitignore")
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking %q: %w", path, err)
	}
	if err := os.WriteFile(path, []byte("*\n"), 0o644); err != nil {
		return fmt.Errorf("writing %q: %w", path, err)
	}
	return nil
}

// filesEqual compares two files by length first, then by reading them
// in parallel with equal-sized buffers until divergence or EOF, per
// §4.3's byte-equality requirement.
func filesEqual(a, b string) (bool, error) {
	fa, err := os.Open(a)
	if err != nil {
		return false, fmt.Errorf("comparing %q and %q: %w", a, b, err)
	}
	defer fa.Close()
	fb, err := os.Open(b)
	if err != nil {
		return false, fmt.Errorf("comparing %q and %q: %w", a, b, err)
	}
	defer fb.Close()

	sa, err := fa.Stat()
	if err != nil {
		return false, err
	}
	sb, err := fb.Stat()
	if err != nil {
		return false, err
	}
	if sa.Size() != sb.Size() {
		return false, nil
	}

	bufA := make([]byte, artifactReadBuf)
	bufB := make([]byte, artifactReadBuf)
	for {
		var na, nb int
		var erra, errb error
		g := new(errgroup.Group)
		g.Go(func() error {
			na, erra = io.ReadFull(fa, bufA)
			return nil
		})
		g.Go(func() error {
			nb, errb = io.ReadFull(fb, bufB)
			return nil
		})
		g.Wait()

		if na != nb {
			return false, nil
		}
		if !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		doneA := erra == io.EOF || erra == io.ErrUnexpectedEOF
		doneB := errb == io.EOF || errb == io.ErrUnexpectedEOF
		if doneA != doneB {
			return false, nil
		}
		if doneA {
			return true, nil
		}
		if erra != nil {
			return false, erra
		}
		if errb != nil {
			return false, errb
		}
	}
}

