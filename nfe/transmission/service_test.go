package transmission_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alapierre/go-nfe-client/nfe"
	"github.com/alapierre/go-nfe-client/nfe/audit"
	"github.com/alapierre/go-nfe-client/nfe/audit/memory"
	"github.com/alapierre/go-nfe-client/nfe/internal/fixture"
	"github.com/alapierre/go-nfe-client/nfe/serializer"
	"github.com/alapierre/go-nfe-client/nfe/signature"
	"github.com/alapierre/go-nfe-client/nfe/transmission"
	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAuthority answers with a fixed reply and remembers the requests.
type stubAuthority struct {
	mu       sync.Mutex
	reply    transmission.Reply
	err      error
	requests []*transmission.Request
}

func (s *stubAuthority) Do(_ context.Context, req *transmission.Request) (*transmission.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	r := s.reply
	return &r, nil
}

func (s *stubAuthority) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// spyRouting counts lookups.
type spyRouting struct {
	lookups atomic.Int32
}

func (s *spyRouting) Endpoint(env nfe.Environment, region string) (string, bool) {
	s.lookups.Add(1)
	return transmission.DefaultRouting().Endpoint(env, region)
}

func signedDocument(t *testing.T) string {
	t.Helper()
	doc, err := serializer.Serialize(fixture.Input())
	require.NoError(t, err)
	signed, err := signature.NewService().Sign(doc.XML, credential())
	require.NoError(t, err)
	return signed
}

func credential() signature.Credential {
	m, p := fixture.Credential()
	return signature.Credential{Material: m, Passphrase: p}
}

func config() transmission.Config {
	return transmission.Config{
		Environment: nfe.Staging,
		Region:      "SP",
		Credential:  credential(),
		Timeout:     time.Second,
	}
}

type harness struct {
	authority *stubAuthority
	routing   *spyRouting
	store     *memory.Store
	svc       *transmission.Service
}

func newHarness(reply transmission.Reply) *harness {
	h := &harness{
		authority: &stubAuthority{reply: reply},
		routing:   &spyRouting{},
		store:     memory.NewStore(),
	}
	h.svc = transmission.NewService(h.authority,
		transmission.WithRouting(h.routing),
		transmission.WithRecorder(audit.NewLogger(h.store)),
	)
	return h
}

func (h *harness) onlyRecord(t *testing.T) audit.Record {
	t.Helper()
	all := h.store.All()
	require.Len(t, all, 1, "exactly one audit record per call")
	return all[0]
}

func TestSubmit_Authorized(t *testing.T) {
	h := newHarness(transmission.Reply{Code: "100", Message: "Autorizado o uso da NF-e", Protocol: "135240000000001", Body: "<ok/>"})

	res := h.svc.Submit(context.Background(), signedDocument(t), config())

	assert.True(t, res.Success)
	assert.Equal(t, transmission.StateAuthorized, res.State)
	assert.Equal(t, "100", res.Code)
	assert.Equal(t, "135240000000001", res.Protocol)
	assert.Equal(t, fixture.AccessKey, res.AccessKey)

	require.Equal(t, 1, h.authority.calls())
	req := h.authority.requests[0]
	assert.Equal(t, audit.OpSubmit, req.Operation)
	assert.Equal(t, "https://homologacao.nfe.fazenda.sp.gov.br/ws/nfeautorizacao4.asmx", req.Endpoint)

	d := etree.NewDocument()
	require.NoError(t, d.ReadFromString(req.Body))
	assert.NotNil(t, d.FindElement("//nfeDadosMsg/enviNFe/NFe/Signature"))
	assert.Equal(t, "1", d.FindElement("//enviNFe/indSinc").Text())

	rec := h.onlyRecord(t)
	assert.Equal(t, audit.OutcomeSuccess, rec.Outcome)
	assert.Equal(t, fixture.IssuerCNPJ, rec.IssuerID)
	assert.Equal(t, fixture.AccessKey, rec.AccessKey)
	assert.Equal(t, "100", rec.StatusCode)
	assert.Equal(t, "135240000000001", rec.Protocol)
	assert.Len(t, []rune(rec.Request), audit.PayloadLimit)
}

func TestSubmit_EmptyPassphraseSkipsRouting(t *testing.T) {
	h := newHarness(transmission.Reply{Code: "100"})
	cfg := config()
	cfg.Credential.Passphrase = ""

	res := h.svc.Submit(context.Background(), signedDocument(t), cfg)

	assert.False(t, res.Success)
	assert.Equal(t, transmission.StateCredentialError, res.State)
	assert.Zero(t, h.routing.lookups.Load())
	assert.Zero(t, h.authority.calls())
	assert.Equal(t, audit.OutcomeError, h.onlyRecord(t).Outcome)
}

func TestSubmit_UnknownRegion(t *testing.T) {
	h := newHarness(transmission.Reply{Code: "100"})
	cfg := config()
	cfg.Region = "XX"

	res := h.svc.Submit(context.Background(), signedDocument(t), cfg)

	assert.Equal(t, transmission.StateRoutingError, res.State)
	assert.Contains(t, res.Message, `"XX"`)
	assert.Zero(t, h.authority.calls())
	assert.Equal(t, audit.OutcomeError, h.onlyRecord(t).Outcome)
}

func TestSubmit_EmptyDocument(t *testing.T) {
	h := newHarness(transmission.Reply{Code: "100"})
	cfg := config()
	cfg.IssuerID = fixture.IssuerCNPJ

	res := h.svc.Submit(context.Background(), "  ", cfg)

	assert.Equal(t, transmission.StateInputError, res.State)
	assert.Zero(t, h.authority.calls())
	assert.Equal(t, fixture.IssuerCNPJ, h.onlyRecord(t).IssuerID)
}

func TestSubmit_Rejected(t *testing.T) {
	h := newHarness(transmission.Reply{Code: "539", Message: "Rejeicao: Duplicidade"})

	res := h.svc.Submit(context.Background(), signedDocument(t), config())

	assert.False(t, res.Success)
	assert.Equal(t, transmission.StateRejected, res.State)
	assert.True(t, res.State.Terminal())
	assert.Equal(t, "Rejeicao: Duplicidade", res.Message)
	assert.Equal(t, audit.OutcomeError, h.onlyRecord(t).Outcome)
}

func TestSubmit_UnknownCodeIsUnclassified(t *testing.T) {
	h := newHarness(transmission.Reply{Code: "778", Message: "algo novo"})

	res := h.svc.Submit(context.Background(), signedDocument(t), config())

	assert.Equal(t, "999", res.Code)
	assert.Equal(t, transmission.StateTransientError, res.State)
	assert.Contains(t, res.Message, "778")
	assert.Contains(t, res.Message, "algo novo")
}

func TestSubmit_PendingLot(t *testing.T) {
	h := newHarness(transmission.Reply{Code: "105"})

	res := h.svc.Submit(context.Background(), signedDocument(t), config())

	assert.False(t, res.Success)
	assert.Equal(t, transmission.StateSent, res.State)
	assert.Equal(t, "Lote em processamento", res.Message)
	assert.Equal(t, audit.OutcomePending, h.onlyRecord(t).Outcome)
}

func TestSubmit_Timeout(t *testing.T) {
	store := memory.NewStore()
	svc := transmission.NewService(
		transmission.NewSimulatedAuthority(transmission.WithLatency(time.Second)),
		transmission.WithRecorder(audit.NewLogger(store)),
	)
	cfg := config()
	cfg.Timeout = 20 * time.Millisecond

	res := svc.Submit(context.Background(), signedDocument(t), cfg)

	assert.False(t, res.Success)
	assert.Equal(t, transmission.StateTransientError, res.State)
	assert.Equal(t, "999", res.Code)
	assert.Contains(t, res.Message, "20 ms")
	require.Len(t, store.All(), 1)
	assert.Equal(t, audit.OutcomeError, store.All()[0].Outcome)
}

func TestSubmit_TransportFailure(t *testing.T) {
	h := newHarness(transmission.Reply{})
	h.authority.err = assert.AnError

	res := h.svc.Submit(context.Background(), signedDocument(t), config())

	assert.Equal(t, transmission.StateTransientError, res.State)
	assert.Contains(t, res.Message, "transport failure")
}

func TestSubmit_ResponseExcerpt(t *testing.T) {
	h := newHarness(transmission.Reply{Code: "100", Body: strings.Repeat("x", 5000)})

	res := h.svc.Submit(context.Background(), signedDocument(t), config())
	assert.Len(t, res.Response, audit.PayloadLimit)
}

func TestQuery(t *testing.T) {
	h := newHarness(transmission.Reply{Code: "100", Protocol: "135240000000001"})

	res := h.svc.Query(context.Background(), fixture.AccessKey, config())
	assert.True(t, res.Success)
	require.Equal(t, 1, h.authority.calls())
	assert.Contains(t, h.authority.requests[0].Body, "<chNFe>"+fixture.AccessKey+"</chNFe>")
	assert.Equal(t, audit.OpQuery, h.onlyRecord(t).Operation)
}

func TestQuery_RejectsShortKey(t *testing.T) {
	h := newHarness(transmission.Reply{Code: "100"})

	res := h.svc.Query(context.Background(), fixture.AccessKey[:43], config())

	assert.Equal(t, transmission.StateInputError, res.State)
	assert.Contains(t, res.Message, "44")
	assert.Zero(t, h.authority.calls())
	assert.Zero(t, h.routing.lookups.Load())
	assert.Equal(t, audit.OutcomeError, h.onlyRecord(t).Outcome)
}

func TestCancel_ShortJustification(t *testing.T) {
	h := newHarness(transmission.Reply{Code: "135"})

	res := h.svc.Cancel(context.Background(), fixture.AccessKey, "0123456789", config())

	assert.Equal(t, transmission.StateInputError, res.State)
	assert.True(t, res.State.Terminal())
	assert.Zero(t, h.authority.calls())
	assert.Equal(t, audit.OutcomeError, h.onlyRecord(t).Outcome)
}

func TestCancel_Proceeds(t *testing.T) {
	h := newHarness(transmission.Reply{Code: "135", Protocol: "135240000000009"})
	cfg := config()
	cfg.Protocol = "135240000000001"

	res := h.svc.Cancel(context.Background(), fixture.AccessKey, "0123456789abcdef", cfg)

	assert.True(t, res.Success)
	assert.Equal(t, transmission.StateAuthorized, res.State)
	require.Equal(t, 1, h.authority.calls())

	d := etree.NewDocument()
	require.NoError(t, d.ReadFromString(h.authority.requests[0].Body))
	assert.Equal(t, "0123456789abcdef", d.FindElement("//detEvento/xJust").Text())
	assert.Equal(t, "135240000000001", d.FindElement("//detEvento/nProt").Text())
	assert.NotNil(t, d.FindElement("//envEvento/evento/Signature"), "event is signed")

	rec := h.onlyRecord(t)
	assert.Equal(t, audit.OpCancel, rec.Operation)
	assert.Equal(t, audit.OutcomeSuccess, rec.Outcome)
}

func TestCancel_BadKey(t *testing.T) {
	h := newHarness(transmission.Reply{Code: "135"})

	res := h.svc.Cancel(context.Background(), "123", "0123456789abcdef", config())
	assert.Equal(t, transmission.StateInputError, res.State)
	assert.Zero(t, h.authority.calls())
}

func TestService_ConcurrentCalls(t *testing.T) {
	h := newHarness(transmission.Reply{Code: "100"})
	doc := signedDocument(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, h.svc.Submit(context.Background(), doc, config()).Success)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, h.authority.calls())
	assert.Len(t, h.store.All(), 20)
}
