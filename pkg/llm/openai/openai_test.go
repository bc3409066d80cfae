package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/tweet-digest/pkg/llm"
	"github.com/lisanmuaddib/tweet-digest/pkg/llm/openai"
)

const completion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "summary text"}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12}
}`

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		config   *openai.Config
		received map[string]interface{}
		status   int
	)

	BeforeEach(func() {
		received = nil
		status = http.StatusOK
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			json.Unmarshal(body, &received)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			if status == http.StatusOK {
				w.Write([]byte(completion))
				return
			}
			w.Write([]byte(`{"error": {"message": "slow down", "type": "rate_limit"}}`))
		}))

		logger := logrus.New()
		logger.SetOutput(GinkgoWriter)
		config = &openai.Config{
			Provider:   openai.ProviderOpenAI,
			APIKey:     "test-key",
			BaseURL:    server.URL,
			Model:      "gpt-4",
			Logger:     logger,
			HTTPClient: server.Client(),
		}
	})

	AfterEach(func() {
		server.Close()
	})

	It("should return the first choice", func() {
		client, err := openai.NewClient(config)
		Expect(err).NotTo(HaveOccurred())

		out, err := client.Generate(context.Background(), "summarize this",
			llm.WithSystemPrompt("you are a summarizer"),
			llm.WithTemperature(0.2),
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("summary text"))

		messages, ok := received["messages"].([]interface{})
		Expect(ok).To(BeTrue())
		Expect(messages).To(HaveLen(2))
		Expect(messages[0]).To(HaveKeyWithValue("role", "system"))
		Expect(messages[1]).To(HaveKeyWithValue("role", "user"))
		Expect(received["temperature"]).To(BeNumerically("~", 0.2, 0.001))
	})

	It("should report API errors", func() {
		status = http.StatusTooManyRequests
		client, err := openai.NewClient(config)
		Expect(err).NotTo(HaveOccurred())

		_, err = client.Generate(context.Background(), "summarize this")
		Expect(err).To(HaveOccurred())
	})

	Context("when validating configuration", func() {
		It("should require an API key", func() {
			config.APIKey = ""
			Expect(config.Validate()).To(MatchError(ContainSubstring("API key")))
		})

		It("should require an endpoint and deployment for azure", func() {
			config.Provider = openai.ProviderAzure
			config.BaseURL = ""
			Expect(config.Validate()).To(HaveOccurred())

			config.BaseURL = "https://example.openai.azure.com"
			config.Model = ""
			Expect(config.Validate()).To(MatchError(ContainSubstring("deployment")))
		})

		It("should fill defaults", func() {
			config.Temperature = 0
			config.MaxTokens = 0
			Expect(config.Validate()).To(Succeed())
			Expect(config.Temperature).To(Equal(0.7))
			Expect(config.MaxTokens).To(Equal(800))
		})
	})
})
