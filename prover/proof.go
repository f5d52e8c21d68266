package prover

import (
	"context"
	"path/filepath"

	"github.com/provideplatform/fold/artifact"
	"github.com/provideplatform/fold/state"
	"github.com/provideplatform/fold/zkp/providers"
)

const proofFileExt = "gz"
const compressedProofSuffix = "compressed"

// WriteProof persists fs as gzipped JSON to {dir}/{name}_{steps}.gz and
// returns the path written
func WriteProof(dir, name string, fs *state.FoldState) (string, error) {
	gz, err := artifact.MarshalCompressed(fs)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, artifact.FileName(name, fs.Steps, proofFileExt))
	err = artifact.WriteFile(path, gz)
	if err != nil {
		return "", err
	}

	return path, nil
}

// ReadProof loads a gzipped fold state from a local path or URL
func ReadProof(ctx context.Context, location string) (*state.FoldState, error) {
	gz, err := artifact.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}

	fs := &state.FoldState{}
	err = artifact.UnmarshalCompressed(gz, fs)
	if err != nil {
		return nil, err
	}

	return fs, nil
}

// WriteCompressedProof persists a compressed proof to
// {dir}/{name}_compressed_{steps}.gz and returns the path written
func WriteCompressedProof(dir, name string, cp *providers.CompressedProof) (string, error) {
	gz, err := artifact.MarshalCompressed(cp)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, artifact.FileName(name+"_"+compressedProofSuffix, cp.Steps, proofFileExt))
	err = artifact.WriteFile(path, gz)
	if err != nil {
		return "", err
	}

	return path, nil
}

// ReadCompressedProof loads a gzipped compressed proof from a local path or URL
func ReadCompressedProof(ctx context.Context, location string) (*providers.CompressedProof, error) {
	gz, err := artifact.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}

	cp := &providers.CompressedProof{}
	err = artifact.UnmarshalCompressed(gz, cp)
	if err != nil {
		return nil, err
	}

	return cp, nil
}
