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

package prover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/provideplatform/fold/artifact"
	"github.com/provideplatform/fold/common"
	"github.com/provideplatform/fold/state"
	"github.com/provideplatform/fold/witness"
	"github.com/provideplatform/fold/zkp/providers"
	provide "github.com/provideplatform/provide-go/common"
)

const defaultMinChaffSteps = 1
const defaultMaxChaffSteps = 4

// CompressionKeys resolves the compression keys on first use
type CompressionKeys interface {
	CompressionKeys(ctx context.Context) (*providers.ProverKey, *providers.VerifierKey, error)
}

// API serves fold sessions over HTTP; long-running work runs on the worker
type API struct {
	registry *Registry
	worker   *Worker
	keys     CompressionKeys
}

type startSessionRequest struct {
	Root    string          `json:"root"`
	Witness json.RawMessage `json:"witness"`
}

type foldRequest struct {
	Witness json.RawMessage `json:"witness"`
}

type chaffRequest struct {
	Steps *int `json:"steps"`
}

type verifyRequest struct {
	Steps *uint64 `json:"steps"`
	Root  *string `json:"root"`
}

type verifyResponse struct {
	Verified bool                `json:"verified"`
	Steps    uint64              `json:"steps"`
	Output   *state.PublicOutput `json:"output,omitempty"`
}

type compressResponse struct {
	Proof    *providers.CompressedProof `json:"proof"`
	Verified bool                       `json:"verified"`
}

// NewAPI returns the session API; keys may be nil when compression is not offered
func NewAPI(registry *Registry, worker *Worker, keys CompressionKeys) *API {
	return &API{
		registry: registry,
		worker:   worker,
		keys:     keys,
	}
}

// InstallAPI registers the fold session API handlers with gin
func (a *API) InstallAPI(r *gin.Engine) {
	r.POST("/api/v1/sessions", a.startSessionHandler)
	r.GET("/api/v1/sessions/:id", a.sessionDetailsHandler)
	r.DELETE("/api/v1/sessions/:id", a.deleteSessionHandler)

	r.POST("/api/v1/sessions/:id/fold", a.foldSessionHandler)
	r.POST("/api/v1/sessions/:id/chaff", a.chaffSessionHandler)
	r.POST("/api/v1/sessions/:id/verify", a.verifySessionHandler)
	r.POST("/api/v1/sessions/:id/compress", a.compressSessionHandler)

	r.GET("/api/v1/sessions/:id/proof", a.sessionProofHandler)
}

// renderFailure maps a failure class to its status code
func renderFailure(err error, c *gin.Context) {
	switch {
	case errors.Is(err, common.ErrMalformedInput), errors.Is(err, common.ErrVerificationFailed):
		provide.RenderError(err.Error(), http.StatusUnprocessableEntity, c)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		provide.RenderError(err.Error(), http.StatusServiceUnavailable, c)
	default:
		provide.RenderError(err.Error(), http.StatusInternalServerError, c)
	}
}

func (a *API) resolveSession(c *gin.Context) *Session {
	s := a.registry.Find(c.Param("id"))
	if s == nil {
		provide.RenderError("session not found", http.StatusNotFound, c)
	}
	return s
}

func bindJSON(c *gin.Context, v interface{}, optional bool) bool {
	buf, err := c.GetRawData()
	if err != nil {
		provide.RenderError(err.Error(), http.StatusBadRequest, c)
		return false
	}

	if len(buf) == 0 && optional {
		return true
	}

	err = json.Unmarshal(buf, v)
	if err != nil {
		provide.RenderError(err.Error(), http.StatusUnprocessableEntity, c)
		return false
	}

	return true
}

func parseWitness(raw json.RawMessage, c *gin.Context) *witness.Witness {
	if len(raw) == 0 {
		provide.RenderError("witness required", http.StatusUnprocessableEntity, c)
		return nil
	}

	w, err := witness.ParseMembership(raw)
	if err != nil {
		renderFailure(err, c)
		return nil
	}

	return w
}

// start a session by folding its first membership
func (a *API) startSessionHandler(c *gin.Context) {
	req := &startSessionRequest{}
	if !bindJSON(c, req, false) {
		return
	}

	if req.Root == "" {
		provide.RenderError("root required", http.StatusUnprocessableEntity, c)
		return
	}

	w := parseWitness(req.Witness, c)
	if w == nil {
		return
	}

	val, err := a.worker.Run(c.Request.Context(), func(ctx context.Context) (interface{}, error) {
		return a.registry.Start(ctx, req.Root, w)
	})
	if err != nil {
		renderFailure(err, c)
		return
	}

	provide.Render(val.(*Session).Status(), http.StatusCreated, c)
}

// fetch session details
func (a *API) sessionDetailsHandler(c *gin.Context) {
	s := a.resolveSession(c)
	if s == nil {
		return
	}

	provide.Render(s.Status(), http.StatusOK, c)
}

// discard a session
func (a *API) deleteSessionHandler(c *gin.Context) {
	s := a.resolveSession(c)
	if s == nil {
		return
	}

	a.registry.Remove(s.ID.String())
	provide.Render(nil, http.StatusNoContent, c)
}

// fold another membership into a session
func (a *API) foldSessionHandler(c *gin.Context) {
	s := a.resolveSession(c)
	if s == nil {
		return
	}

	req := &foldRequest{}
	if !bindJSON(c, req, false) {
		return
	}

	w := parseWitness(req.Witness, c)
	if w == nil {
		return
	}

	val, err := a.worker.Run(c.Request.Context(), func(ctx context.Context) (interface{}, error) {
		return s.Fold(ctx, w)
	})
	if err != nil {
		renderFailure(err, c)
		return
	}

	provide.Render(val, http.StatusOK, c)
}

// append chaff steps to a session; a random count is used when none is given
func (a *API) chaffSessionHandler(c *gin.Context) {
	s := a.resolveSession(c)
	if s == nil {
		return
	}

	req := &chaffRequest{}
	if !bindJSON(c, req, true) {
		return
	}

	var steps int
	if req.Steps != nil {
		steps = *req.Steps
		if steps < 1 {
			provide.RenderError("steps must be positive", http.StatusUnprocessableEntity, c)
			return
		}
	} else {
		n, err := RandomChaffCount(defaultMinChaffSteps, defaultMaxChaffSteps, a.registry.prover.rand)
		if err != nil {
			renderFailure(err, c)
			return
		}
		steps = n
	}

	val, err := a.worker.Run(c.Request.Context(), func(ctx context.Context) (interface{}, error) {
		return s.Chaff(ctx, steps)
	})
	if err != nil {
		renderFailure(err, c)
		return
	}

	provide.Render(val, http.StatusOK, c)
}

// verify a session's recursive proof
func (a *API) verifySessionHandler(c *gin.Context) {
	s := a.resolveSession(c)
	if s == nil {
		return
	}

	req := &verifyRequest{}
	if !bindJSON(c, req, true) {
		return
	}

	fs := s.Snapshot()
	steps := fs.Steps
	if req.Steps != nil {
		steps = *req.Steps
	}

	root := s.Root
	if req.Root != nil {
		root = *req.Root
	}

	val, err := a.worker.Run(c.Request.Context(), func(ctx context.Context) (interface{}, error) {
		return s.prover.Verify(fs, steps, root)
	})
	if err != nil {
		if errors.Is(err, common.ErrVerificationFailed) {
			provide.Render(&verifyResponse{Verified: false, Steps: steps}, http.StatusUnprocessableEntity, c)
			return
		}
		renderFailure(err, c)
		return
	}

	out := val.(state.PublicOutput)
	provide.Render(&verifyResponse{Verified: true, Steps: steps, Output: &out}, http.StatusOK, c)
}

// compress a session into a succinct proof
func (a *API) compressSessionHandler(c *gin.Context) {
	s := a.resolveSession(c)
	if s == nil {
		return
	}

	if a.keys == nil {
		provide.RenderError("compression keys are not configured", http.StatusServiceUnavailable, c)
		return
	}

	pk, vk, err := a.keys.CompressionKeys(c.Request.Context())
	if err != nil {
		renderFailure(err, c)
		return
	}

	fs := s.Snapshot()
	val, err := a.worker.Run(c.Request.Context(), func(ctx context.Context) (interface{}, error) {
		cp, err := s.CompressSnapshot(ctx, fs, pk)
		if err != nil {
			return nil, err
		}

		_, err = s.VerifyCompressed(cp, vk, fs.Steps)
		if err != nil {
			return nil, err
		}

		return cp, nil
	})
	if err != nil {
		renderFailure(err, c)
		return
	}

	provide.Render(&compressResponse{Proof: val.(*providers.CompressedProof), Verified: true}, http.StatusOK, c)
}

// download the session's recursive proof as a gzipped artifact
func (a *API) sessionProofHandler(c *gin.Context) {
	s := a.resolveSession(c)
	if s == nil {
		return
	}

	fs := s.Snapshot()
	gz, err := artifact.MarshalCompressed(fs)
	if err != nil {
		renderFailure(err, c)
		return
	}

	filename := artifact.FileName(common.ProofArtifact, fs.Steps, proofFileExt)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, "application/gzip", gz)
}
