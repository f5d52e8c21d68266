package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/provideplatform/fold/common"
	"github.com/provideplatform/fold/prover"
	"github.com/provideplatform/fold/witness"
	"github.com/provideplatform/fold/zkp/providers"
)

func TestAPI(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "fold api")
}

func serve(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf []byte
	if body != nil {
		buf, _ = json.Marshal(body)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

var _ = Describe("main", func() {
	var (
		dir string
		svc *service
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)

		var err error
		dir, err = os.MkdirTemp("", "fold-api")
		Expect(err).NotTo(HaveOccurred())

		raw, err := json.Marshal(providers.MembershipCircuit(witness.ExampleDepth))
		Expect(err).NotTo(HaveOccurred())

		common.CircuitLocation = filepath.Join(dir, "folded.json")
		Expect(os.WriteFile(common.CircuitLocation, raw, 0644)).To(Succeed())

		common.ArtifactsPath = filepath.Join(dir, "artifacts")
		common.ArtifactChunks = 2
		common.ParamsLocation = ""
		common.TreeDepth = witness.ExampleDepth

		svc, err = newService(context.Background())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	Describe("newService", func() {
		It("loads the circuit and generates params", func() {
			Expect(svc.circuit.Depth).To(Equal(witness.ExampleDepth))
			Expect(svc.params.Circuit).To(Equal(svc.circuit.Digest))
			Expect(filepath.Join(common.ArtifactsPath, "params", "params.json")).To(BeAnExistingFile())
		})

		It("reuses persisted params on restart", func() {
			restarted, err := newService(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(restarted.params.Key).To(Equal(svc.params.Key))
		})

		It("fails when the circuit cannot be loaded", func() {
			common.CircuitLocation = filepath.Join(dir, "missing.json")
			_, err := newService(context.Background())
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("routes", func() {
		It("reports status", func() {
			rec := serve(svc.router, http.MethodGet, "/status", nil)
			Expect(rec.Code).To(Equal(http.StatusNoContent))
		})

		It("folds and verifies a session", func() {
			w, root := witness.Example()

			rec := serve(svc.router, http.MethodPost, "/api/v1/sessions", map[string]interface{}{
				"root":    root,
				"witness": w,
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))

			status := &prover.SessionStatus{}
			Expect(json.Unmarshal(rec.Body.Bytes(), status)).To(Succeed())
			Expect(status.Steps).To(Equal(uint64(1)))

			rec = serve(svc.router, http.MethodPost, "/api/v1/sessions/"+status.ID.String()+"/chaff", map[string]interface{}{"steps": 1})
			Expect(rec.Code).To(Equal(http.StatusOK))

			rec = serve(svc.router, http.MethodPost, "/api/v1/sessions/"+status.ID.String()+"/verify", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			verified := map[string]interface{}{}
			Expect(json.Unmarshal(rec.Body.Bytes(), &verified)).To(Succeed())
			Expect(verified["verified"]).To(BeTrue())
		})

		It("exposes metrics", func() {
			rec := serve(svc.router, http.MethodGet, "/metrics", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("fold_sessions_active"))
		})

		It("reports missing compression keys", func() {
			w, root := witness.Example()
			rec := serve(svc.router, http.MethodPost, "/api/v1/sessions", map[string]interface{}{
				"root":    root,
				"witness": w,
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))

			status := &prover.SessionStatus{}
			Expect(json.Unmarshal(rec.Body.Bytes(), status)).To(Succeed())

			rec = serve(svc.router, http.MethodPost, "/api/v1/sessions/"+status.ID.String()+"/compress", nil)
			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		})
	})
})
