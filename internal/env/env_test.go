package env_test

import (
	"context"
	"os"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/hoxconform/internal/env"
)

var _ = Describe("env", func() {
	Describe("LoadConfig()", func() {
		vars := []string{"HOX_HOST", "HOX_PORT", "HOX_TIMEOUT", "HOX_LOG_LEVEL", "HOX_HTTP_PORT", "HOX_ANNOUNCE_TABLES"}

		AfterEach(func() {
			for _, v := range vars {
				os.Unsetenv(v)
			}
		})

		It("has defaults", func() {
			for _, v := range vars {
				os.Unsetenv(v)
			}

			config, err := env.LoadConfig(context.Background())
			Expect(err).To(Succeed())
			Expect(config.Host).To(Equal("localhost"))
			Expect(config.Port).To(Equal(8000))
			Expect(config.Timeout).To(Equal(5 * time.Second))
			Expect(config.LogLevel).To(Equal("info"))
			Expect(config.HTTPPort).To(Equal(8001))
			Expect(config.AnnounceTables).To(BeFalse())
		})

		It("reads the environment", func() {
			os.Setenv("HOX_HOST", "hox.example.com")
			os.Setenv("HOX_PORT", "9000")
			os.Setenv("HOX_TIMEOUT", "250ms")
			os.Setenv("HOX_ANNOUNCE_TABLES", "true")

			config, err := env.LoadConfig(context.Background())
			Expect(err).To(Succeed())
			Expect(config.Host).To(Equal("hox.example.com"))
			Expect(config.Port).To(Equal(9000))
			Expect(config.Timeout).To(Equal(250 * time.Millisecond))
			Expect(config.AnnounceTables).To(BeTrue())
		})

		It("fails on values of the wrong type", func() {
			os.Setenv("HOX_PORT", "eighty")

			_, err := env.LoadConfig(context.Background())
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("MakeLogger()", func() {
		It("builds a logger at the requested level", func() {
			log, err := env.MakeLogger("warn")
			Expect(err).To(Succeed())
			Expect(log.Core().Enabled(zap.WarnLevel)).To(BeTrue())
			Expect(log.Core().Enabled(zap.InfoLevel)).To(BeFalse())
		})

		It("rejects unknown levels", func() {
			_, err := env.MakeLogger("loud")
			Expect(err).To(HaveOccurred())
		})
	})
})
