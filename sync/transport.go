package sync

import (
	"context"

	"github.com/localfirst/ldb/pkg/id"
)

// Frame is one opaque, AEAD-sealed message on a document's gossip topic
// (spec.md §6). Body is the output of Seal; only a peer holding the
// matching DocKey can open it.
type Frame struct {
	Doc  id.DocId
	From id.PeerId
	Body []byte
}

// Transport delivers Frames between this peer and one remote peer. A
// production transport wraps a network connection; InProcTransport (below)
// links two Sessions directly for tests.
type Transport interface {
	Send(ctx context.Context, f Frame) error
	Recv(ctx context.Context) (Frame, error)
}

// InProcTransport is an in-memory Transport pair for tests: frames written
// to one end are read from the other's Recv.
type InProcTransport struct {
	out chan<- Frame
	in  <-chan Frame
}

// NewInProcPipe returns two linked transports; frames sent on one arrive on
// the other.
func NewInProcPipe(buf int) (*InProcTransport, *InProcTransport) {
	ab := make(chan Frame, buf)
	ba := make(chan Frame, buf)
	return &InProcTransport{out: ab, in: ba}, &InProcTransport{out: ba, in: ab}
}

func (t *InProcTransport) Send(ctx context.Context, f Frame) error {
	select {
	case t.out <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *InProcTransport) Recv(ctx context.Context) (Frame, error) {
	select {
	case f := <-t.in:
		return f, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}
