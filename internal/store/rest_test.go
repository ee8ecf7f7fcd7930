package store_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/seednote/seed-worker/internal/failure"
	st "github.com/seednote/seed-worker/internal/store"
	"github.com/seednote/seed-worker/internal/store/model"
	"github.com/seednote/seed-worker/pkg/requestid"
)

type recordedRequest struct {
	method string
	path   string
	query  map[string]string
	header http.Header
	body   string
}

var _ = Describe("rest seed store", func() {
	var (
		server   *httptest.Server
		requests []recordedRequest
		handler  func(w http.ResponseWriter, r *http.Request)
		store    *st.RestSeedStore
		ctx      context.Context
	)

	BeforeEach(func() {
		requests = nil
		ctx = context.Background()
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			Expect(err).To(BeNil())

			query := map[string]string{}
			for k := range r.URL.Query() {
				query[k] = r.URL.Query().Get(k)
			}
			requests = append(requests, recordedRequest{
				method: r.Method,
				path:   r.URL.Path,
				query:  query,
				header: r.Header.Clone(),
				body:   string(body),
			})
			handler(w, r)
		}))

		store = st.NewRestSeedStore(st.RestConfig{
			URL:     server.URL + "/rest/v1/",
			APIKey:  "service-key",
			Table:   "seeds",
			Timeout: 5 * time.Second,
		}, server.Client())
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("FetchPending", func() {
		It("asks for one pending seed with the credentials", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`[{"id":"abc","title":"Recipe app","context":null,"status":"pending"}]`))
			}

			seed, err := store.FetchPending(requestid.ToContext(ctx, "cycle-1"))
			Expect(err).To(BeNil())
			Expect(seed).NotTo(BeNil())
			Expect(seed.ID).To(Equal("abc"))
			Expect(seed.Title).To(Equal("Recipe app"))
			Expect(seed.Context).To(BeNil())

			Expect(requests).To(HaveLen(1))
			req := requests[0]
			Expect(req.method).To(Equal(http.MethodGet))
			Expect(req.path).To(Equal("/rest/v1/seeds"))
			Expect(req.query).To(Equal(map[string]string{"status": "eq.pending", "limit": "1"}))
			Expect(req.header.Get("apikey")).To(Equal("service-key"))
			Expect(req.header.Get("Authorization")).To(Equal("Bearer service-key"))
			Expect(req.header.Get(requestid.Header)).To(Equal("cycle-1"))
		})

		It("returns nil when the list is empty", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`[]`))
			}

			seed, err := store.FetchPending(ctx)
			Expect(err).To(BeNil())
			Expect(seed).To(BeNil())
		})

		It("reads a creation time without a zone", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`[{"id":"abc","title":"Recipe app","context":null,"status":"pending","created_at":"2025-10-19T10:00:00.123456","is_pinned":false}]`))
			}

			seed, err := store.FetchPending(ctx)
			Expect(err).To(BeNil())
			Expect(seed).NotTo(BeNil())
			Expect(seed.ID).To(Equal("abc"))
			Expect(seed.CreatedAt.Equal(time.Date(2025, 10, 19, 10, 0, 0, 123456000, time.UTC))).To(BeTrue())
		})

		It("keeps a record without id so the caller can reject it", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`[{"title":"X"}]`))
			}

			seed, err := store.FetchPending(ctx)
			Expect(err).To(BeNil())
			Expect(seed).NotTo(BeNil())
			Expect(seed.ID).To(BeEmpty())
		})

		It("reports a decode error on a malformed body", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"message":"not a list"}`))
			}

			_, err := store.FetchPending(ctx)
			Expect(err).NotTo(BeNil())
			Expect(failure.KindOf(err)).To(Equal(failure.KindDecode))
		})

		It("reports a transport error on a non-2xx status", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"message":"JWT expired"}`))
			}

			_, err := store.FetchPending(ctx)
			Expect(err).NotTo(BeNil())
			Expect(failure.KindOf(err)).To(Equal(failure.KindTransport))
			Expect(err.Error()).To(ContainSubstring("401"))
		})

		It("reports a transport error when the store is unreachable", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {}
			server.Close()

			_, err := store.FetchPending(ctx)
			Expect(err).NotTo(BeNil())
			Expect(failure.IsTransport(err)).To(BeTrue())
		})
	})

	Describe("Claim", func() {
		It("patches only while the seed is pending", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`[{"id":"abc","status":"processing"}]`))
			}

			claimed, err := store.Claim(ctx, "abc")
			Expect(err).To(BeNil())
			Expect(claimed).To(BeTrue())

			Expect(requests).To(HaveLen(1))
			req := requests[0]
			Expect(req.method).To(Equal(http.MethodPatch))
			Expect(req.query).To(Equal(map[string]string{"id": "eq.abc", "status": "eq.pending"}))
			Expect(req.header.Get("Prefer")).To(Equal("return=representation"))
			Expect(req.header.Get("Content-Type")).To(Equal("application/json"))
			Expect(req.body).To(MatchJSON(`{"status":"processing"}`))
		})

		It("reports a lost claim when no row matched", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`[]`))
			}

			claimed, err := store.Claim(ctx, "abc")
			Expect(err).To(BeNil())
			Expect(claimed).To(BeFalse())
		})

		It("assumes the claim when the store answers without content", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}

			claimed, err := store.Claim(ctx, "abc")
			Expect(err).To(BeNil())
			Expect(claimed).To(BeTrue())
		})
	})

	Describe("Update", func() {
		It("sends a minimal merge patch", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}

			err := store.Update(ctx, "abc", model.SeedUpdate{
				Status:  model.SeedStatusDone,
				Sprouts: model.Sprouts(`{"stack1":{"stack_name":"Go"}}`),
			})
			Expect(err).To(BeNil())

			Expect(requests).To(HaveLen(1))
			req := requests[0]
			Expect(req.method).To(Equal(http.MethodPatch))
			Expect(req.query).To(Equal(map[string]string{"id": "eq.abc"}))
			Expect(req.header.Get("Prefer")).To(Equal("return=minimal"))
			Expect(req.header.Get("apikey")).To(Equal("service-key"))

			var body map[string]json.RawMessage
			Expect(json.Unmarshal([]byte(req.body), &body)).To(Succeed())
			Expect(body).To(HaveLen(2))
			Expect(string(body["status"])).To(Equal(`"done"`))
			Expect(string(body["sprouts"])).To(MatchJSON(`{"stack1":{"stack_name":"Go"}}`))
		})

		It("escapes the identifier", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}

			Expect(store.Update(ctx, "a&b=c", model.SeedUpdate{Status: model.SeedStatusError})).To(Succeed())
			Expect(requests[0].query).To(Equal(map[string]string{"id": "eq.a&b=c"}))
		})

		It("fails on a non-2xx status", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}

			err := store.Update(ctx, "abc", model.SeedUpdate{Status: model.SeedStatusError})
			Expect(err).NotTo(BeNil())
			Expect(failure.IsTransport(err)).To(BeTrue())
		})

		It("skips the call for an empty update", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {}

			Expect(store.Update(ctx, "abc", model.SeedUpdate{})).To(Succeed())
			Expect(requests).To(BeEmpty())
		})
	})
})
