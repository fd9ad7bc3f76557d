package main

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"rtmpt.io/tunnel/v1/rtmptlib/connection/tunnel"
	"rtmpt.io/tunnel/v1/rtmptlib/logger"
	"rtmpt.io/tunnel/v1/rtmptlib/tests/server"
)

var _ = Describe("Probe run", func() {
	var rtmpt *server.RtmptServer
	var s *settings

	log := logger.MockLogger(GinkgoWriter)

	BeforeEach(func() {
		rtmpt = server.NewRtmptServer(log)
		s = &settings{
			Host:         rtmpt.Host,
			Port:         rtmpt.Port,
			PollInterval: 10 * time.Millisecond,
			LogLevel:     "trace",
		}
	})

	AfterEach(func() {
		rtmpt.Close()
	})

	When("The server echoes", func() {
		It("pipes stdin out and the echo back", func() {
			var stdout bytes.Buffer
			Expect(run(log, s, strings.NewReader("ping"), &stdout)).To(Succeed())

			Expect(stdout.String()).To(Equal("ping"))
			Expect(rtmpt.Paths()).To(ContainElement("/close/session1"))
		})
	})

	When("The server will not open a tunnel", func() {
		BeforeEach(func() {
			rtmpt.FailWith("/open", http.StatusServiceUnavailable)
		})

		It("fails without reconnecting", func() {
			err := run(log, s, strings.NewReader("ping"), &bytes.Buffer{})
			Expect(tunnel.IsKind(err, tunnel.KindConnect)).To(BeTrue())
		})

		It("keeps dialing when asked to reconnect", func() {
			s.Reconnect = true

			go func() {
				time.Sleep(200 * time.Millisecond)
				rtmpt.FailWith("/open", http.StatusOK)
			}()

			var stdout bytes.Buffer
			Expect(run(log, s, strings.NewReader("pong"), &stdout)).To(Succeed())
			Expect(stdout.String()).To(Equal("pong"))
		})
	})
})
