package tunnel

import (
	"context"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"rtmpt.io/tunnel/v1/rtmptlib/connection/httpclient"
	"rtmpt.io/tunnel/v1/rtmptlib/logger"
	"rtmpt.io/tunnel/v1/rtmptlib/tests/server"
)

var _ = Describe("Socket against a tunnel server", func() {
	var rtmpt *server.RtmptServer
	var socket *Socket

	logger := logger.MockLogger(GinkgoWriter)
	ctx := context.Background()

	dial := func(secured bool) {
		options := httpclient.Options{
			Host:    rtmpt.Host,
			Port:    rtmpt.Port,
			Secured: secured,
		}
		if secured {
			options.Doer = rtmpt.Client()
		}

		client, err := httpclient.New(logger, options)
		Expect(err).ToNot(HaveOccurred())

		socket, err = New(logger, Options{
			Client:       client,
			PollInterval: 10 * time.Millisecond,
		})
		Expect(err).ToNot(HaveOccurred())
	}

	AfterEach(func() {
		rtmpt.Close()
	})

	When("Exchanging bytes over plain http", func() {
		var echoed []byte

		BeforeEach(func() {
			rtmpt = server.NewRtmptServer(logger)
			rtmpt.SetConnectionId("abc123")
			dial(false)

			Expect(socket.Connect(ctx)).To(Succeed())

			socket.Write([]byte("hello"))
			Expect(socket.Flush(ctx)).To(Succeed())

			var err error
			echoed, err = socket.Read(ctx)
			Expect(err).ToNot(HaveOccurred())

			Expect(socket.Close(ctx)).To(Succeed())
		})

		It("gets its bytes back", func() {
			Expect(echoed).To(Equal([]byte("hello")))
		})

		It("walks the wire protocol in order", func() {
			Expect(rtmpt.Paths()).To(Equal([]string{
				"/fcs/ident2",
				"/open/1",
				"/idle/abc123/0",
				"/send/abc123/1",
				"/idle/abc123/2",
				"/close/abc123",
			}))
			Expect(rtmpt.Sessions()).To(BeZero())
		})

		It("sends the fixed headers and bodies", func() {
			requests := rtmpt.Requests()
			for _, r := range requests {
				Expect(r.Header.Get("Content-Type")).To(Equal("application/x-fcs"))
				Expect(r.Header.Get("User-Agent")).To(Equal("Shockwave Flash"))
			}

			Expect(requests[0].Body).To(Equal([]byte{0x00}))
			Expect(requests[1].Body).To(BeEmpty())
			Expect(requests[2].Body).To(Equal([]byte{0x00}))
			Expect(requests[3].Body).To(Equal([]byte("hello")))
			Expect(requests[4].Body).To(BeEmpty())
			Expect(requests[5].Body).To(Equal([]byte{0x00}))
		})
	})

	When("Exchanging bytes over https", func() {
		var echoed []byte

		BeforeEach(func() {
			rtmpt = server.NewTLSRtmptServer(logger)
			dial(true)

			Expect(socket.Connect(ctx)).To(Succeed())
			socket.Write([]byte("secret"))
			Expect(socket.Flush(ctx)).To(Succeed())
			echoed, _ = socket.Read(ctx)
		})

		It("works the same", func() {
			Expect(echoed).To(Equal([]byte("secret")))
		})
	})

	When("The server pushes nothing for a few polls", func() {
		var payload []byte

		BeforeEach(func() {
			rtmpt = server.NewRtmptServer(logger)
			dial(false)
			Expect(socket.Connect(ctx)).To(Succeed())

			rtmpt.QueuePoll([]byte{0x02}, []byte{0x02}, []byte{0x02, 0x41, 0x42})
			payload, _ = socket.Read(ctx)
		})

		It("keeps polling until there is payload", func() {
			Expect(payload).To(Equal([]byte{0x41, 0x42}))
			Expect(socket.Sequence()).To(Equal(uint64(4)))
		})
	})

	When("The server refuses to open", func() {
		var err error

		BeforeEach(func() {
			rtmpt = server.NewRtmptServer(logger)
			rtmpt.FailWith("/open", http.StatusServiceUnavailable)
			dial(false)

			err = socket.Connect(ctx)
		})

		It("stays disconnected and can try again", func() {
			Expect(IsKind(err, KindConnect)).To(BeTrue())
			Expect(socket.IsConnected()).To(BeFalse())

			rtmpt.FailWith("/open", http.StatusOK)
			Expect(socket.Connect(ctx)).To(Succeed())
			Expect(socket.IsConnected()).To(BeTrue())
		})
	})

	When("The server forgets the session", func() {
		var err error

		BeforeEach(func() {
			rtmpt = server.NewRtmptServer(logger)
			dial(false)
			Expect(socket.Connect(ctx)).To(Succeed())

			rtmpt.FailWith("/send", http.StatusNotFound)
			err = socket.Flush(ctx)
		})

		It("reports a write error with the status", func() {
			Expect(IsKind(err, KindWrite)).To(BeTrue())
			Expect(err.(*Error).StatusCode).To(Equal(http.StatusNotFound))
		})
	})
})
