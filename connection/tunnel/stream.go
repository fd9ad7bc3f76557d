package tunnel

import "context"

// Stream lets code that wants an io.ReadWriter use a Socket. Reads poll as needed under
// the context the Stream was created with; writes are only queued, call Flush to send them.
type Stream struct {
	ctx    context.Context
	socket *Socket
}

func (s *Socket) Stream(ctx context.Context) *Stream {
	return &Stream{
		ctx:    ctx,
		socket: s,
	}
}

func (st *Stream) Read(p []byte) (int, error) {
	return st.socket.readInto(st.ctx, p)
}

func (st *Stream) Write(p []byte) (int, error) {
	return st.socket.Write(p)
}

func (st *Stream) Flush() error {
	return st.socket.Flush(st.ctx)
}
