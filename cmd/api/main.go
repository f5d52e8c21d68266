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

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/provideplatform/fold/common"
	"github.com/provideplatform/fold/params"
	"github.com/provideplatform/fold/prover"
	"github.com/provideplatform/fold/zkp/providers"
	provide "github.com/provideplatform/provide-go/common"
)

const shutdownTimeout = time.Second * 30

type service struct {
	circuit  *providers.CircuitDef
	params   *providers.PublicParams
	manager  *params.Manager
	registry *prover.Registry
	router   *gin.Engine
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, err := newService(ctx)
	if err != nil {
		common.Log.Warningf("failed to initialize fold api; %s", err.Error())
		os.Exit(1)
	}

	var wg sync.WaitGroup
	params.RequireNatsSubscriptions(svc.manager, &wg)

	srv := &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%s", common.ListenPort),
		Handler: svc.router,
	}

	go func() {
		common.Log.Debugf("fold api listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			common.Log.Warningf("fold api server error; %s", err.Error())
			cancel()
		}
	}()

	<-ctx.Done()
	common.Log.Debug("shutting down fold api")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		common.Log.Warningf("failed to shutdown fold api gracefully; %s", err.Error())
	}
}

// newService loads the circuit and public params and installs the API
func newService(ctx context.Context) (*service, error) {
	engine, err := providers.EngineFactory(common.EngineProvider)
	if err != nil {
		return nil, err
	}

	circuit, err := engine.LoadCircuit(ctx, common.CircuitLocation)
	if err != nil {
		return nil, err
	}

	if circuit.Depth != common.TreeDepth {
		common.Log.Warningf("circuit at %s has depth %d; configured tree depth is %d", common.CircuitLocation, circuit.Depth, common.TreeDepth)
	}

	manager := params.NewManager(engine, common.ArtifactsPath, common.ArtifactChunks, common.Log)
	pp, err := manager.RequireParams(ctx, circuit, common.ParamsLocation)
	if err != nil {
		return nil, err
	}

	p := prover.New(engine, providers.InitMembershipStepCalculator(), circuit, pp, common.Log)
	registry := prover.NewRegistry(p)
	worker := prover.NewWorker(common.MaxConcurrentJobs, common.Log)

	r := gin.Default()
	r.GET("/status", statusHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	prover.NewAPI(registry, worker, manager).InstallAPI(r)

	common.Log.Debugf("fold api initialized for %s circuit %s with params %s", circuit.Name, circuit.Digest, pp.Key)
	return &service{
		circuit:  circuit,
		params:   pp,
		manager:  manager,
		registry: registry,
		router:   r,
	}, nil
}

func statusHandler(c *gin.Context) {
	provide.Render(nil, http.StatusNoContent, c)
}
