package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/pagesim/mem/vm"
)

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	h.ServeHTTP(rec, req)

	return rec
}

var _ = Describe("Monitor", func() {
	var (
		table   *vm.Manager
		m       *Monitor
		handler http.Handler
	)

	BeforeEach(func() {
		table = vm.MakeBuilder().
			WithRAMSize(3 * 4096).
			WithSwapSize(2 * 4096).
			Build("PageTable")
		table.Allocate(1, 4)
		table.Allocate(2, 1)

		m = NewMonitor().WithProfileDuration(10 * time.Millisecond)
		m.RegisterPageTable(table)
		handler = m.Handler()
	})

	It("should serve the snapshot", func() {
		rec := get(handler, "/api/snapshot")

		Expect(rec.Code).To(Equal(http.StatusOK))

		snap := vm.Snapshot{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &snap)).To(Succeed())
		Expect(snap).To(Equal(table.Snapshot()))
	})

	It("should serve the stats", func() {
		rec := get(handler, "/api/stats")

		Expect(rec.Code).To(Equal(http.StatusOK))

		stats := vm.Stats{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &stats)).To(Succeed())
		Expect(stats.RAMPages).To(Equal(3))
		Expect(stats.SwapPages).To(Equal(2))
		Expect(stats.Evictions).To(Equal(uint64(2)))
	})

	It("should count the pages of a process", func() {
		rec := get(handler, "/api/process/1")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(MatchJSON(`{"pid":1,"ram":2,"swap":2}`))
	})

	It("should reject a malformed process id", func() {
		rec := get(handler, "/api/process/abc")

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should reject a negative process id", func() {
		rec := get(handler, "/api/process/-1")

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should serialize the manager", func() {
		rec := get(handler, "/api/manager")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(json.Valid(rec.Body.Bytes())).To(BeTrue())
	})

	It("should list progress bars", func() {
		bar := m.CreateProgressBar("Steps", 10)
		bar.IncrementInProgress(4)
		bar.MoveInProgressToFinished(3)

		rec := get(handler, "/api/progress")

		bars := []ProgressStatus{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &bars)).To(Succeed())
		Expect(bars).To(HaveLen(1))
		Expect(bars[0].ID).To(Equal("bar-1"))
		Expect(bars[0].Name).To(Equal("Steps"))
		Expect(bars[0].Total).To(Equal(uint64(10)))
		Expect(bars[0].Finished).To(Equal(uint64(3)))
		Expect(bars[0].InProgress).To(Equal(uint64(1)))
	})

	It("should drop completed progress bars", func() {
		first := m.CreateProgressBar("A", 1)
		m.CreateProgressBar("B", 1)

		m.CompleteProgressBar(first)

		rec := get(handler, "/api/progress")

		bars := []ProgressStatus{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &bars)).To(Succeed())
		Expect(bars).To(HaveLen(1))
		Expect(bars[0].Name).To(Equal("B"))
	})

	It("should report resource usage", func() {
		rec := get(handler, "/api/resource")

		Expect(rec.Code).To(Equal(http.StatusOK))

		rsp := resourceRsp{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
	})

	It("should collect a CPU profile", func() {
		rec := get(handler, "/api/profile")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(json.Valid(rec.Body.Bytes())).To(BeTrue())
	})

	It("should serve the web page", func() {
		rec := get(handler, "/")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("<!DOCTYPE html>"))
	})

	It("should refuse to start without a page table", func() {
		_, err := NewMonitor().StartServer()

		Expect(err).To(HaveOccurred())
	})

	It("should start and stop a server", func() {
		url, err := m.StartServer()
		Expect(err).ToNot(HaveOccurred())

		rsp, err := http.Get(url + "/api/stats")
		Expect(err).ToNot(HaveOccurred())
		rsp.Body.Close()
		Expect(rsp.StatusCode).To(Equal(http.StatusOK))

		Expect(m.StopServer(context.Background())).To(Succeed())
	})

	It("should fall back to a random port for reserved ports", func() {
		m.WithPortNumber(80)

		Expect(m.portNumber).To(Equal(0))
	})
})
