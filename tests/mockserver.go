package tests

import (
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
)

type MockServer struct {
	server *httptest.Server

	Url  string
	Host string
	Port int
}

type MockHandler struct {
	Endpoint    string
	HandlerFunc http.HandlerFunc
}

func NewMockServer(handlers ...MockHandler) *MockServer {
	return newMockServer(false, handlers...)
}

// NewMockTLSServer serves the same handlers over https. Use Client() to trust it.
func NewMockTLSServer(handlers ...MockHandler) *MockServer {
	return newMockServer(true, handlers...)
}

func newMockServer(secured bool, handlers ...MockHandler) *MockServer {
	mux := http.NewServeMux()

	for _, handler := range handlers {
		mux.HandleFunc(handler.Endpoint, handler.HandlerFunc)
	}

	var s *httptest.Server
	if secured {
		s = httptest.NewTLSServer(mux)
	} else {
		s = httptest.NewServer(mux)
	}

	host, port := SplitServerUrl(s.URL)

	return &MockServer{
		server: s,
		Url:    s.URL,
		Host:   host,
		Port:   port,
	}
}

func (m *MockServer) Client() *http.Client {
	return m.server.Client()
}

func (m *MockServer) Close() {
	m.server.Close()
}

// SplitServerUrl pulls host and port back out of an httptest server url
func SplitServerUrl(serverUrl string) (string, int) {
	u, err := url.Parse(serverUrl)
	if err != nil {
		return "", 0
	}

	host, rawPort, err := net.SplitHostPort(u.Host)
	if err != nil {
		return u.Host, 0
	}

	port, _ := strconv.Atoi(rawPort)
	return host, port
}
