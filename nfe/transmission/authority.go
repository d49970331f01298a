package transmission

import (
	"context"
	"fmt"

	"github.com/alapierre/go-nfe-client/nfe"
	"github.com/alapierre/go-nfe-client/nfe/audit"
)

// Authority performs exactly one exchange with the remote authority. It
// returns an error only when no answer was obtained; a rejection is a Reply.
type Authority interface {
	Do(ctx context.Context, req *Request) (*Reply, error)
}

type Request struct {
	Operation   audit.Operation
	Endpoint    string
	Environment nfe.Environment
	Region      string
	AccessKey   string
	// Body is the complete SOAP envelope.
	Body string
}

type Reply struct {
	Code     string
	Message  string
	Protocol string
	// Body is the raw answer as received.
	Body string
}

// RequestError is a non-2xx HTTP answer that did not carry a status code.
type RequestError struct {
	StatusCode int
	Body       string
}

func (r *RequestError) Error() string {
	return fmt.Sprintf("status: %d message: %s", r.StatusCode, r.Body)
}
