package cmd

import (
	"io"

	"github.com/alapierre/go-nfe-client/nfe/accesskey"
	"github.com/alapierre/go-nfe-client/nfe/audit"
	"github.com/alapierre/go-nfe-client/nfe/pipeline"
	"github.com/alapierre/go-nfe-client/nfe/transmission"
	"github.com/go-faster/jx"
)

func writeJSON(w io.Writer, fn func(e *jx.Encoder)) error {
	e := &jx.Encoder{}
	e.SetIdent(2)
	fn(e)
	_, err := w.Write(append(e.Bytes(), '\n'))
	return err
}

func str(e *jx.Encoder, name, v string) {
	e.Field(name, func(e *jx.Encoder) { e.Str(v) })
}

func num(e *jx.Encoder, name string, v int64) {
	e.Field(name, func(e *jx.Encoder) { e.Int64(v) })
}

func encodeResult(e *jx.Encoder, res *transmission.Result) {
	if res == nil {
		e.Null()
		return
	}
	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(res.Success) })
		str(e, "state", string(res.State))
		str(e, "code", res.Code)
		str(e, "message", res.Message)
		if res.Protocol != "" {
			str(e, "protocol", res.Protocol)
		}
		if res.AccessKey != "" {
			str(e, "accessKey", res.AccessKey)
		}
		num(e, "latencyMs", res.Latency.Milliseconds())
	})
}

func encodeItem(e *jx.Encoder, name string, it pipeline.BatchItem) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "input", name)
		if out := it.Outcome; out != nil {
			if out.Document != nil {
				str(e, "accessKey", out.Document.AccessKey)
			}
			num(e, "attempts", int64(out.Attempts))
			if len(out.Validation.Missing) > 0 {
				e.Field("missing", func(e *jx.Encoder) {
					e.Arr(func(e *jx.Encoder) {
						for _, m := range out.Validation.Missing {
							e.Str(m)
						}
					})
				})
			}
			e.Field("result", func(e *jx.Encoder) { encodeResult(e, out.Result) })
		}
		if it.Err != nil {
			str(e, "error", it.Err.Error())
		}
	})
}

func encodeParts(e *jx.Encoder, key string, p *accesskey.Parts) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "key", key)
		str(e, "formatted", accesskey.Format(key))
		str(e, "region", p.Region)
		str(e, "yearMonth", p.YearMonth)
		str(e, "issuerId", p.IssuerID)
		str(e, "model", p.Model)
		num(e, "series", int64(p.Series))
		num(e, "number", int64(p.Number))
		num(e, "emissionType", int64(p.EmissionType))
		str(e, "nonce", p.Nonce)
		num(e, "checkDigit", int64(p.CheckDigit))
	})
}

func encodePage(e *jx.Encoder, p *audit.Page) {
	e.Obj(func(e *jx.Encoder) {
		num(e, "total", int64(p.Total))
		num(e, "page", int64(p.Page))
		num(e, "totalPages", int64(p.TotalPages))
		e.Field("records", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, r := range p.Records {
					e.Obj(func(e *jx.Encoder) {
						str(e, "id", r.ID.String())
						str(e, "timestamp", r.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"))
						str(e, "operation", string(r.Operation))
						str(e, "accessKey", r.AccessKey)
						str(e, "statusCode", r.StatusCode)
						str(e, "statusMessage", r.StatusMessage)
						str(e, "outcome", string(r.Outcome))
						str(e, "protocol", r.Protocol)
						num(e, "latencyMs", r.LatencyMs)
					})
				}
			})
		})
	})
}

func encodeStats(e *jx.Encoder, issuer string, days int, st *audit.Stats) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "issuerId", issuer)
		num(e, "windowDays", int64(days))
		num(e, "totalOps", int64(st.TotalOps))
		num(e, "successes", int64(st.Successes))
		num(e, "errors", int64(st.Errors))
		num(e, "pending", int64(st.Pending))
		e.Field("meanLatencyMs", func(e *jx.Encoder) { e.Float64(st.MeanLatencyMs) })
		e.Field("byOperation", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, op := range []audit.Operation{audit.OpSubmit, audit.OpQuery, audit.OpCancel} {
					num(e, string(op), int64(st.ByOperation[op]))
				}
			})
		})
	})
}
