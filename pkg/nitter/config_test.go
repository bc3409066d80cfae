package nitter_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lisanmuaddib/tweet-digest/pkg/nitter"
)

var _ = Describe("Config", func() {
	It("should pace a retrieval once by default", func() {
		Expect(nitter.DefaultConfig().PerRequestDelay).To(BeFalse())
	})

	It("should enable per-fetch pacing from the environment", func() {
		GinkgoT().Setenv("NITTER_PER_REQUEST_DELAY", "true")

		config, err := nitter.NewConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(config.PerRequestDelay).To(BeTrue())
	})
})
