package artifact

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/provideplatform/fold/common"
	"golang.org/x/sync/errgroup"
)

// Fetch reads a single artifact from a local path or an http(s) URL; there
// is no retry
func Fetch(ctx context.Context, location string) ([]byte, error) {
	if !common.IsRemoteLocation(location) {
		b, err := os.ReadFile(location)
		if err != nil {
			return nil, common.Wrap(common.ErrIO, err, "failed to read artifact %s", location)
		}
		return b, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, common.Wrap(common.ErrIO, err, "failed to build request for artifact %s", location)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, common.Wrap(common.ErrIO, err, "failed to fetch artifact %s", location)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, common.Wrap(common.ErrIO, nil, "failed to fetch artifact %s; status %d", location, resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, common.Wrap(common.ErrIO, err, "failed to read artifact %s", location)
	}

	return b, nil
}

// WriteFile writes b to path, creating parent directories
func WriteFile(path string, b []byte) error {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return common.Wrap(common.ErrIO, err, "failed to create artifact directory for %s", path)
	}

	err = os.WriteFile(path, b, 0644)
	if err != nil {
		return common.Wrap(common.ErrIO, err, "failed to write artifact %s", path)
	}

	return nil
}

// WriteChunks splits b into n chunks and writes them into dir as
// {artifact}_{index}.json
func WriteChunks(dir, artifact string, b []byte, n int) error {
	chunks, err := Chunk(b, n)
	if err != nil {
		return err
	}

	for i := range chunks {
		err := WriteFile(filepath.Join(dir, ChunkFileName(artifact, i)), chunks[i])
		if err != nil {
			return err
		}
	}

	common.Log.Debugf("wrote %d-byte artifact %s as %d chunks in %s", len(b), artifact, n, dir)
	return nil
}

// ReadChunks fetches n chunks of the named artifact in parallel from a
// directory or base URL and reassembles them in index order
func ReadChunks(ctx context.Context, location, artifact string, n int) ([]byte, error) {
	if n < 1 {
		return nil, common.Wrap(common.ErrMalformedInput, nil, "chunk count must be positive; got %d", n)
	}

	chunks := make([][]byte, n)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			b, err := Fetch(gctx, chunkLocation(location, artifact, i))
			if err != nil {
				return err
			}
			chunks[i] = b
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return nil, err
	}

	return Reassemble(chunks), nil
}

func chunkLocation(location, artifact string, index int) string {
	name := ChunkFileName(artifact, index)
	if common.IsRemoteLocation(location) {
		return fmt.Sprintf("%s/%s", strings.TrimRight(location, "/"), name)
	}
	return filepath.Join(location, name)
}
