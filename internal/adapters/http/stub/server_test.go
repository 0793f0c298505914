package stub

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/lcarun/internal/adapters/ipc"
	"github.com/okian/lcarun/internal/domain/schema"
)

// post sends one JSON-RPC request to h and decodes the envelope.
func post(h http.Handler, method string, params any) (*httptest.ResponseRecorder, ipc.Response) {
	raw, _ := json.Marshal(params)
	body, _ := json.Marshal(ipc.Request{JSONRPC: ipc.Version, ID: json.RawMessage(`"1"`), Method: method, Params: raw})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body)))

	var resp ipc.Response
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestHandleRPC(t *testing.T) {
	Convey("Given a stub server", t, func() {
		s := New(WithReadyAfter(1))
		h := s.Handler()
		ds := DefaultDataset()
		cables := ds.Processes[2]
		ilcd := ds.Methods[0]

		Convey("When a GET reaches the RPC endpoint", func() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			Convey("Then it is rejected", func() {
				So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
				So(rec.Header().Get("Allow"), ShouldEqual, http.MethodPost)
			})
		})

		Convey("When the body is not JSON", func() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{")))

			var resp ipc.Response
			_ = json.Unmarshal(rec.Body.Bytes(), &resp)

			Convey("Then a parse error is returned in the envelope", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(resp.Error, ShouldNotBeNil)
				So(resp.Error.Code, ShouldEqual, ipc.CodeParseError)
			})
		})

		Convey("When the method is unknown", func() {
			_, resp := post(h, "data/put", map[string]string{})

			Convey("Then method-not-found is returned with the request id", func() {
				So(resp.Error.Code, ShouldEqual, ipc.CodeMethodNotFound)
				So(string(resp.ID), ShouldEqual, `"1"`)
			})
		})

		Convey("When a descriptor is requested by name", func() {
			_, resp := post(h, ipc.MethodGetDescriptor, map[string]string{"@type": "Process", "name": "electric cables"})

			var ref schema.Ref
			So(json.Unmarshal(resp.Result, &ref), ShouldBeNil)

			Convey("Then the process is returned", func() {
				So(ref.ID, ShouldEqual, cables.ID)
				So(ref.Category, ShouldEqual, "electronics")
			})
		})

		Convey("When a descriptor type is not served", func() {
			_, resp := post(h, ipc.MethodGetDescriptor, map[string]string{"@type": "Actor", "name": "x"})

			Convey("Then a bad request error is returned", func() {
				So(resp.Error.Code, ShouldEqual, ipc.CodeBadRequest)
			})
		})

		Convey("When a descriptor request has neither id nor name", func() {
			_, resp := post(h, ipc.MethodGetDescriptor, map[string]string{"@type": "Process"})

			Convey("Then a bad request error is returned", func() {
				So(resp.Error.Code, ShouldEqual, ipc.CodeBadRequest)
			})
		})

		Convey("When impact category descriptors are listed", func() {
			_, resp := post(h, ipc.MethodGetDescriptors, map[string]string{"@type": "ImpactCategory"})

			var refs []schema.Ref
			So(json.Unmarshal(resp.Result, &refs), ShouldBeNil)

			Convey("Then categories of every method are included", func() {
				So(len(refs), ShouldEqual, 4)
			})
		})

		Convey("When a calculation is submitted", func() {
			m := schema.NewRef(schema.RefImpactMethod, ilcd.ID)
			_, resp := post(h, ipc.MethodCalculate, schema.CalculationSetup{
				Target: schema.NewRef(schema.RefProcess, cables.ID), ImpactMethod: &m, Amount: 2,
			})

			var state schema.ResultState
			So(json.Unmarshal(resp.Result, &state), ShouldBeNil)

			Convey("Then it becomes ready after the configured polls", func() {
				So(state.IsReady, ShouldBeFalse)
				So(s.Open(), ShouldEqual, 1)

				_, resp = post(h, ipc.MethodState, map[string]string{"@id": state.ID})
				So(json.Unmarshal(resp.Result, &state), ShouldBeNil)
				So(state.IsReady, ShouldBeTrue)
			})

			Convey("Then the total impact scales with the amount", func() {
				post(h, ipc.MethodState, map[string]string{"@id": state.ID})
				climate := ilcd.Categories[0]
				_, resp = post(h, ipc.MethodTotalImpactValueOf, map[string]any{
					"@id":            state.ID,
					"impactCategory": climate.ref(),
					"techFlow":       techFlowOf(cables),
				})

				var value schema.ImpactValue
				So(json.Unmarshal(resp.Result, &value), ShouldBeNil)
				So(value.Amount, ShouldAlmostEqual, 6.9024, 1e-9)
			})

			Convey("Then disposing forgets it", func() {
				_, resp = post(h, ipc.MethodDispose, map[string]string{"@id": state.ID})
				So(resp.Error, ShouldBeNil)
				So(s.Open(), ShouldEqual, 0)

				_, resp = post(h, ipc.MethodState, map[string]string{"@id": state.ID})
				So(resp.Error.Code, ShouldEqual, ipc.CodeNotFound)
			})
		})

		Convey("When a simulation is submitted", func() {
			m := schema.NewRef(schema.RefImpactMethod, ilcd.ID)
			_, resp := post(h, ipc.MethodSimulate, schema.CalculationSetup{
				Target: schema.NewRef(schema.RefProcess, cables.ID), ImpactMethod: &m, Amount: 1,
			})

			var state schema.ResultState
			So(json.Unmarshal(resp.Result, &state), ShouldBeNil)
			post(h, ipc.MethodState, map[string]string{"@id": state.ID})

			Convey("Then its totals cannot be read", func() {
				_, resp = post(h, ipc.MethodTotalImpactValueOf, map[string]any{
					"@id":            state.ID,
					"impactCategory": ilcd.Categories[0].ref(),
					"techFlow":       techFlowOf(cables),
				})
				So(resp.Error, ShouldNotBeNil)
				So(resp.Error.Code, ShouldEqual, ipc.CodeBadRequest)
				So(s.Open(), ShouldEqual, 1)
			})
		})

		Convey("When a calculation targets an unknown process", func() {
			m := schema.NewRef(schema.RefImpactMethod, ilcd.ID)
			_, resp := post(h, ipc.MethodCalculate, schema.CalculationSetup{
				Target: schema.NewRef(schema.RefProcess, "missing"), ImpactMethod: &m,
			})

			Convey("Then not found is returned", func() {
				So(resp.Error.Code, ShouldEqual, ipc.CodeNotFound)
			})
		})

		Convey("When a calculation has no impact method", func() {
			_, resp := post(h, ipc.MethodCalculate, schema.CalculationSetup{
				Target: schema.NewRef(schema.RefProcess, cables.ID),
			})

			Convey("Then a bad request error is returned", func() {
				So(resp.Error.Code, ShouldEqual, ipc.CodeBadRequest)
			})
		})

		Convey("When the metrics endpoint is scraped", func() {
			post(h, ipc.MethodGetDescriptors, map[string]string{"@type": "Process"})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			Convey("Then stub request metrics are exposed", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, "lcarun_stub_http_requests_total")
			})
		})
	})

	Convey("Given a stub without dispose support", t, func() {
		h := New(WithDispose(false)).Handler()
		_, resp := post(h, ipc.MethodDispose, map[string]string{"@id": "any"})

		Convey("Then dispose is an unknown method", func() {
			So(resp.Error.Code, ShouldEqual, ipc.CodeMethodNotFound)
		})
	})
}
