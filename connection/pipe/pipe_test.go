package pipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"rtmpt.io/tunnel/v1/rtmptlib/connection/transporter"
	"rtmpt.io/tunnel/v1/rtmptlib/logger"
)

func TestPipe(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Pipe Suite")
}

var _ = Describe("Pipe", func() {
	var mockTransport *transporter.MockTransporter
	var doneChan chan struct{}
	var inboundChan chan *[]byte
	var pipe *Pipe
	var dst *bytes.Buffer

	logger := logger.MockLogger(GinkgoWriter)
	ctx := context.Background()

	// never returns anything, never ends
	blockingSource := func() io.Reader {
		r, _ := io.Pipe()
		return r
	}

	BeforeEach(func() {
		doneChan = make(chan struct{})
		inboundChan = make(chan *[]byte, 4)

		mockTransport = &transporter.MockTransporter{}
		mockTransport.On("Done").Return(doneChan)
		mockTransport.On("Inbound").Return(inboundChan)

		pipe = New(logger, mockTransport)
		pipe.Linger = 50 * time.Millisecond
		dst = &bytes.Buffer{}
	})

	When("The source has bytes and the transport answers", func() {
		var err error

		BeforeEach(func() {
			mockTransport.On("Send", []byte("hello")).Return(nil)

			reply := []byte("world")
			inboundChan <- &reply

			err = pipe.Run(ctx, strings.NewReader("hello"), dst)
		})

		It("moves bytes both ways and returns once things go quiet", func() {
			Expect(err).ToNot(HaveOccurred())
			Expect(dst.String()).To(Equal("world"))
			mockTransport.AssertCalled(GinkgoT(), "Send", []byte("hello"))
		})
	})

	When("Sending fails", func() {
		var err error

		BeforeEach(func() {
			mockTransport.On("Send", []byte("hello")).Return(fmt.Errorf("tunnel is gone"))
			err = pipe.Run(ctx, strings.NewReader("hello"), dst)
		})

		It("returns the failure", func() {
			Expect(err).To(MatchError(ContainSubstring("tunnel is gone")))
		})
	})

	When("The transport dies", func() {
		var err error
		reason := errors.New("server hung up")

		BeforeEach(func() {
			mockTransport.On("Err").Return(reason)
			close(doneChan)

			err = pipe.Run(ctx, blockingSource(), dst)
		})

		It("returns why", func() {
			Expect(errors.Is(err, reason)).To(BeTrue())
		})
	})

	When("The context ends", func() {
		var err error

		BeforeEach(func() {
			cancelled, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()

			err = pipe.Run(cancelled, blockingSource(), dst)
		})

		It("stops", func() {
			Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
		})
	})

	When("The source fails", func() {
		var err error

		BeforeEach(func() {
			r, w := io.Pipe()
			w.CloseWithError(fmt.Errorf("stdin broke"))

			err = pipe.Run(ctx, r, dst)
		})

		It("returns the read error", func() {
			Expect(err).To(MatchError(ContainSubstring("stdin broke")))
		})
	})
})
