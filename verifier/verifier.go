/*
 * Copyright 2017-2022 Provide Technologies Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package verifier checks folded membership proofs, recursive or compressed,
// against a public root and step count.
package verifier

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/provideplatform/fold/artifact"
	"github.com/provideplatform/fold/common"
	"github.com/provideplatform/fold/state"
	"github.com/provideplatform/fold/zkp/field"
	"github.com/provideplatform/fold/zkp/providers"
)

// Kind tags the representation of a proof
type Kind string

// proof representations
const (
	KindRecursive  Kind = "recursive"
	KindCompressed Kind = "compressed"
)

// Proof is either a recursive fold state or a compressed proof
type Proof struct {
	Kind       Kind                       `json:"kind"`
	Recursive  *state.FoldState           `json:"recursive,omitempty"`
	Compressed *providers.CompressedProof `json:"compressed,omitempty"`
}

// Material is the read-only verification material; recursive proofs need
// the public params, compressed proofs the verifier key
type Material struct {
	Params      *providers.PublicParams
	VerifierKey *providers.VerifierKey
}

// RecursiveProof wraps a fold state
func RecursiveProof(fs *state.FoldState) *Proof {
	return &Proof{Kind: KindRecursive, Recursive: fs}
}

// CompressedProof wraps a compressed proof
func CompressedProof(cp *providers.CompressedProof) *Proof {
	return &Proof{Kind: KindCompressed, Compressed: cp}
}

// Verifier checks proofs using an engine
type Verifier struct {
	engine providers.Engine
	log    common.Logger
}

// New returns a verifier; a nil logger uses the package default
func New(engine providers.Engine, log common.Logger) *Verifier {
	return &Verifier{
		engine: engine,
		log:    common.LoggerOrDefault(log),
	}
}

// StartState returns z0 = [root, 0, 0, 0] for a decimal root, or all zero
// when root is empty
func StartState(root string) (state.PublicOutput, error) {
	if root == "" {
		return state.PublicOutput{}, nil
	}

	le, err := field.ParseRoot(root)
	if err != nil {
		return state.PublicOutput{}, err
	}

	r, err := field.FromLittleEndian(le)
	if err != nil {
		return state.PublicOutput{}, err
	}

	return state.NewPublicOutput(r), nil
}

// SecondaryStartState is the single zero element the companion curve's fold
// starts from
func SecondaryStartState() []fp.Element {
	return []fp.Element{{}}
}

// Verify checks proof against the expected root and step count and returns
// its public output; any mismatch is a verification failure
func (v *Verifier) Verify(proof *Proof, material *Material, steps uint64, expectedRoot string) (state.PublicOutput, error) {
	var out state.PublicOutput

	if proof == nil || material == nil {
		return out, common.Wrap(common.ErrVerificationFailed, nil, "proof and verification material are required")
	}

	z0, err := StartState(expectedRoot)
	if err != nil {
		return out, err
	}

	switch proof.Kind {
	case KindRecursive:
		if proof.Recursive == nil || material.Params == nil {
			return out, common.Wrap(common.ErrVerificationFailed, nil, "recursive verification requires a fold state and public params")
		}
		out, err = v.engine.VerifyRecursiveProof(proof.Recursive, material.Params, steps, z0, SecondaryStartState())
	case KindCompressed:
		if proof.Compressed == nil || material.VerifierKey == nil {
			return out, common.Wrap(common.ErrVerificationFailed, nil, "compressed verification requires a compressed proof and verifier key")
		}
		out, err = v.engine.VerifyCompressedProof(proof.Compressed, material.VerifierKey, steps, z0)
	default:
		return out, common.Wrap(common.ErrVerificationFailed, nil, "unknown proof kind %q", proof.Kind)
	}

	if err != nil {
		v.log.Debugf("%s proof failed verification at %d steps; %s", proof.Kind, steps, err.Error())
		return state.PublicOutput{}, err
	}

	v.log.Debugf("verified %s proof of %d steps; %s memberships", proof.Kind, steps, out.Verified().String())
	return out, nil
}

// VerifyRecursive checks a fold state against the public params
func (v *Verifier) VerifyRecursive(fs *state.FoldState, params *providers.PublicParams, steps uint64, expectedRoot string) (state.PublicOutput, error) {
	return v.Verify(RecursiveProof(fs), &Material{Params: params}, steps, expectedRoot)
}

// VerifyCompressed checks a compressed proof against the verifier key
func (v *Verifier) VerifyCompressed(cp *providers.CompressedProof, vk *providers.VerifierKey, steps uint64, expectedRoot string) (state.PublicOutput, error) {
	return v.Verify(CompressedProof(cp), &Material{VerifierKey: vk}, steps, expectedRoot)
}

// VerifyRecursiveArtifact decompresses a gzipped fold state and verifies it
func (v *Verifier) VerifyRecursiveArtifact(gz []byte, params *providers.PublicParams, steps uint64, expectedRoot string) (state.PublicOutput, error) {
	var fs state.FoldState
	err := artifact.UnmarshalCompressed(gz, &fs)
	if err != nil {
		return state.PublicOutput{}, err
	}
	return v.VerifyRecursive(&fs, params, steps, expectedRoot)
}

// VerifyCompressedArtifact decompresses a gzipped compressed proof and verifies it
func (v *Verifier) VerifyCompressedArtifact(gz []byte, vk *providers.VerifierKey, steps uint64, expectedRoot string) (state.PublicOutput, error) {
	var cp providers.CompressedProof
	err := artifact.UnmarshalCompressed(gz, &cp)
	if err != nil {
		return state.PublicOutput{}, err
	}
	return v.VerifyCompressed(&cp, vk, steps, expectedRoot)
}
