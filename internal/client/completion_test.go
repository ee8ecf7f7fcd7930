package client_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/seednote/seed-worker/internal/client"
	"github.com/seednote/seed-worker/internal/failure"
	"github.com/seednote/seed-worker/pkg/requestid"
)

var _ = Describe("completion client", func() {
	var (
		ctx     context.Context
		server  *httptest.Server
		handler http.HandlerFunc
		request *client.ChatRequest
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(w, r)
		}))
		request = &client.ChatRequest{
			Model: "llama3.1",
			Messages: []client.ChatMessage{
				{Role: client.RoleSystem, Content: "You output ONLY valid JSON. No explanation."},
				{Role: client.RoleUser, Content: "Project idea: Recipe app"},
			},
		}
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Complete", func() {
		It("posts a non-streaming chat request and returns the content", func() {
			var received map[string]json.RawMessage
			handler = func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodPost))
				Expect(r.URL.Path).To(Equal("/v1/chat/completions"))
				Expect(r.Header.Get("Content-Type")).To(Equal("application/json"))
				Expect(r.Header.Get(requestid.Header)).To(Equal("cycle-7"))

				body, err := io.ReadAll(r.Body)
				Expect(err).To(BeNil())
				Expect(json.Unmarshal(body, &received)).To(Succeed())

				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"a\":1}"}}]}`))
			}

			c := client.NewCompletionClient(server.URL+"/", 5*time.Second)
			content, err := c.Complete(requestid.ToContext(ctx, "cycle-7"), request)
			Expect(err).To(BeNil())
			Expect(content).To(Equal(`{"a":1}`))

			Expect(string(received["model"])).To(Equal(`"llama3.1"`))
			Expect(string(received["stream"])).To(Equal("false"))
			Expect(received).NotTo(HaveKey("temperature"))

			var messages []client.ChatMessage
			Expect(json.Unmarshal(received["messages"], &messages)).To(Succeed())
			Expect(messages).To(HaveLen(2))
			Expect(messages[0].Role).To(Equal("system"))
			Expect(messages[1].Content).To(ContainSubstring("Recipe app"))
		})

		It("sends the temperature when set", func() {
			var received map[string]json.RawMessage
			handler = func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				Expect(json.Unmarshal(body, &received)).To(Succeed())
				_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
			}

			temperature := 0.2
			request.Temperature = &temperature
			_, err := client.NewCompletionClient(server.URL, 0).Complete(ctx, request)
			Expect(err).To(BeNil())
			Expect(string(received["temperature"])).To(Equal("0.2"))
		})

		It("fails fast on a non-2xx status", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"error":{"message":"model not found"}}`))
			}

			_, err := client.NewCompletionClient(server.URL, 0).Complete(ctx, request)
			Expect(err).NotTo(BeNil())
			Expect(failure.IsTransport(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("404"))
		})

		It("reports a transport error when the backend is down", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {}
			server.Close()

			_, err := client.NewCompletionClient(server.URL, 0).Complete(ctx, request)
			Expect(failure.IsTransport(err)).To(BeTrue())
		})

		It("reports a transport error when the call exceeds the timeout", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				<-r.Context().Done()
			}

			_, err := client.NewCompletionClient(server.URL, 50*time.Millisecond).Complete(ctx, request)
			Expect(failure.IsTransport(err)).To(BeTrue())
		})

		It("reports a parse error when the envelope is not JSON", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>oops</html>`))
			}

			_, err := client.NewCompletionClient(server.URL, 0).Complete(ctx, request)
			Expect(failure.IsParse(err)).To(BeTrue())
		})

		DescribeTable("reports a response shape error",
			func(body, field string) {
				handler = func(w http.ResponseWriter, r *http.Request) {
					_, _ = w.Write([]byte(body))
				}

				_, err := client.NewCompletionClient(server.URL, 0).Complete(ctx, request)
				Expect(failure.IsResponseShape(err)).To(BeTrue())

				var shapeErr *failure.ErrResponseShape
				Expect(err).To(BeAssignableToTypeOf(shapeErr))
				Expect(err.(*failure.ErrResponseShape).Field).To(Equal(field))
			},
			Entry("without choices", `{}`, "choices[0]"),
			Entry("with an empty choice list", `{"choices":[]}`, "choices[0]"),
			Entry("without a message", `{"choices":[{"index":0}]}`, "choices[0].message"),
			Entry("without content", `{"choices":[{"message":{"role":"assistant"}}]}`, "choices[0].message.content"),
			Entry("with null content", `{"choices":[{"message":{"content":null}}]}`, "choices[0].message.content"),
			Entry("with non-string content", `{"choices":[{"message":{"content":{"a":1}}}]}`, "choices[0].message.content (string)"),
		)

		It("returns an empty string content as is", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[{"message":{"content":""}}]}`))
			}

			content, err := client.NewCompletionClient(server.URL, 0).Complete(ctx, request)
			Expect(err).To(BeNil())
			Expect(content).To(BeEmpty())
		})

		It("surfaces an error object sent with a 2xx status", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"error":{"message":"out of memory"}}`))
			}

			_, err := client.NewCompletionClient(server.URL, 0).Complete(ctx, request)
			Expect(failure.IsResponseShape(err)).To(BeTrue())
			Expect(err.(*failure.ErrResponseShape).Field).To(Equal("choices[0]"))
			Expect(err.Error()).To(ContainSubstring("out of memory"))
		})
	})

	Describe("HealthCheck", func() {
		It("succeeds when the model list is served", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/v1/models"))
				_, _ = w.Write([]byte(`{"data":[]}`))
			}

			Expect(client.NewCompletionClient(server.URL, 0).HealthCheck(ctx)).To(Succeed())
		})

		It("fails on an unexpected status", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			}

			err := client.NewCompletionClient(server.URL, 0).HealthCheck(ctx)
			Expect(failure.IsTransport(err)).To(BeTrue())
		})
	})
})
