package transmission

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alapierre/go-nfe-client/nfe"
	"github.com/alapierre/go-nfe-client/nfe/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPAuthority_Do(t *testing.T) {
	var contentType, received string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		received = string(b)

		body, _ := RenderReply(ReplyModel{Operation: audit.OpQuery, Environment: nfe.Staging, Region: "35", AccessKey: key, Code: "100", Protocol: "135240000000001"})
		soap, _ := ResultEnvelope(audit.OpQuery, body)
		w.Header().Set("Content-Type", "application/soap+xml; charset=utf-8")
		_, _ = io.WriteString(w, soap)
	}))
	defer srv.Close()

	a := NewHTTPAuthority(srv.Client())
	reply, err := a.Do(context.Background(), &Request{Operation: audit.OpQuery, Endpoint: srv.URL, Body: "<consSitNFe/>"})
	require.NoError(t, err)

	assert.Equal(t, "100", reply.Code)
	assert.Equal(t, "135240000000001", reply.Protocol)
	assert.Equal(t, "<consSitNFe/>", received)
	assert.Contains(t, contentType, `action="`+SOAPAction(audit.OpQuery)+`"`)
}

func TestHTTPAuthority_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fault":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, "<Fault><cStat>999</cStat><xMotivo>Erro</xMotivo></Fault>")
		case "/garbage":
			_, _ = io.WriteString(w, "<html>")
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	a := NewHTTPAuthority(nil)

	reply, err := a.Do(context.Background(), &Request{Operation: audit.OpSubmit, Endpoint: srv.URL + "/fault"})
	require.NoError(t, err)
	assert.Equal(t, "999", reply.Code)

	_, err = a.Do(context.Background(), &Request{Operation: audit.OpSubmit, Endpoint: srv.URL + "/garbage"})
	assert.Error(t, err)

	_, err = a.Do(context.Background(), &Request{Operation: audit.OpSubmit, Endpoint: srv.URL + "/down"})
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusBadGateway, reqErr.StatusCode)
}
