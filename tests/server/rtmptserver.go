package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"rtmpt.io/tunnel/v1/rtmptlib/logger"
	"rtmpt.io/tunnel/v1/rtmptlib/tests"
)

// Request is one exchange as the server saw it
type Request struct {
	Path   string
	Body   []byte
	Header http.Header
}

type session struct {
	pending bytes.Buffer
}

// RtmptServer is an in-process tunnel endpoint. By default it echoes: whatever a client
// sends is handed back on that client's next poll. Tests can script poll responses and
// make any route fail.
type RtmptServer struct {
	logger *logger.Logger
	server *httptest.Server

	lock         sync.Mutex
	sessions     map[string]*session
	connectionId func() string
	hint         byte
	failures     map[string]int
	scripted     [][]byte
	requests     []Request

	Addr string
	Host string
	Port int

	// every /send payload, if anyone is listening
	ReceivedBytes chan []byte
}

func NewRtmptServer(logger *logger.Logger) *RtmptServer {
	return newRtmptServer(logger, false)
}

func NewTLSRtmptServer(logger *logger.Logger) *RtmptServer {
	return newRtmptServer(logger, true)
}

func newRtmptServer(logger *logger.Logger, secured bool) *RtmptServer {
	r := &RtmptServer{
		logger:        logger,
		sessions:      make(map[string]*session),
		failures:      make(map[string]int),
		hint:          0x01,
		ReceivedBytes: make(chan []byte, 64),
	}

	count := 0
	r.connectionId = func() string {
		count++
		return fmt.Sprintf("session%d", count)
	}

	if secured {
		r.server = httptest.NewTLSServer(r)
	} else {
		r.server = httptest.NewServer(r)
	}

	r.Addr = r.server.URL
	r.Host, r.Port = tests.SplitServerUrl(r.server.URL)

	return r
}

// Client trusts the server's certificate when it was started with TLS
func (r *RtmptServer) Client() *http.Client {
	return r.server.Client()
}

func (r *RtmptServer) Close() {
	r.server.Close()
}

// SetConnectionId makes every following /open hand out id
func (r *RtmptServer) SetConnectionId(id string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.connectionId = func() string { return id }
}

// SetHint changes the interval hint byte put in front of every response
func (r *RtmptServer) SetHint(hint byte) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.hint = hint
}

// FailWith answers every request whose path starts with prefix with status. A status of
// http.StatusOK removes the failure.
func (r *RtmptServer) FailWith(prefix string, status int) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if status == http.StatusOK {
		delete(r.failures, prefix)
	} else {
		r.failures[prefix] = status
	}
}

// QueuePoll makes the next poll return raw verbatim, hint byte included, ahead of any
// echoed bytes
func (r *RtmptServer) QueuePoll(raw ...[]byte) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.scripted = append(r.scripted, raw...)
}

// Push queues payload for the next poll of connectionId
func (r *RtmptServer) Push(connectionId string, payload []byte) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	s, ok := r.sessions[connectionId]
	if !ok {
		return fmt.Errorf("no session %s", connectionId)
	}
	s.pending.Write(payload)
	return nil
}

func (r *RtmptServer) Requests() []Request {
	r.lock.Lock()
	defer r.lock.Unlock()

	return append([]Request{}, r.requests...)
}

// Paths lists the path of every request received so far, in order
func (r *RtmptServer) Paths() []string {
	paths := []string{}
	for _, req := range r.Requests() {
		paths = append(paths, req.Path)
	}
	return paths
}

func (r *RtmptServer) Sessions() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return len(r.sessions)
}

func (r *RtmptServer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		r.logger.Errorf("failed to read request body: %s", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	r.requests = append(r.requests, Request{
		Path:   req.URL.Path,
		Body:   body,
		Header: req.Header.Clone(),
	})

	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	for prefix, status := range r.failures {
		if strings.HasPrefix(req.URL.Path, prefix) {
			w.WriteHeader(status)
			return
		}
	}

	parts := strings.Split(strings.Trim(req.URL.Path, "/"), "/")
	switch {
	case req.URL.Path == "/fcs/ident2":
		w.WriteHeader(http.StatusOK)

	case req.URL.Path == "/open/1":
		id := r.connectionId()
		r.sessions[id] = &session{}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(id + "\n"))

	case len(parts) == 3 && parts[0] == "idle":
		s, ok := r.sessions[parts[1]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.WriteHeader(http.StatusOK)
		if len(r.scripted) > 0 {
			w.Write(r.scripted[0])
			r.scripted = r.scripted[1:]
			return
		}

		w.Write([]byte{r.hint})
		w.Write(s.pending.Bytes())
		s.pending.Reset()

	case len(parts) == 3 && parts[0] == "send":
		s, ok := r.sessions[parts[1]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		s.pending.Write(body)
		select {
		case r.ReceivedBytes <- body:
		default:
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte{r.hint})

	case len(parts) == 2 && parts[0] == "close":
		if _, ok := r.sessions[parts[1]]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		delete(r.sessions, parts[1])
		w.WriteHeader(http.StatusOK)
		w.Write([]byte{r.hint})

	default:
		r.logger.Errorf("unexpected request to %s", req.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}
