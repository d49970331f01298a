package transmission

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alapierre/go-nfe-client/nfe/util"
	"github.com/go-faster/errors"
)

// maxReplySize bounds how much of an answer is read.
const maxReplySize = 4 << 20

// HTTPAuthority posts SOAP 1.2 envelopes to the resolved endpoint.
type HTTPAuthority struct {
	client *http.Client
}

// NewHTTPAuthority uses client, or a client with a 60 s ceiling when nil.
// The per call timeout comes from the caller's context.
func NewHTTPAuthority(client *http.Client) *HTTPAuthority {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPAuthority{client: client}
}

func (a *HTTPAuthority) Do(ctx context.Context, req *Request) (*Reply, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, strings.NewReader(req.Body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Content-Type", `application/soap+xml; charset=utf-8; action="`+SOAPAction(req.Operation)+`"`)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return nil, errors.Wrap(err, "read reply")
	}
	body := string(b)

	if util.DebugEnabled() {
		logger.Debugf("POST %s -> %d\n%s", req.Endpoint, resp.StatusCode, body)
	}

	reply, parseErr := ParseReply(body)
	if resp.StatusCode/100 != 2 {
		// a SOAP fault may still carry a status
		if parseErr == nil {
			return reply, nil
		}
		return nil, &RequestError{StatusCode: resp.StatusCode, Body: util.Truncate(body, 512)}
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return reply, nil
}
