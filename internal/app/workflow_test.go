package app_test

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/lcarun/internal/adapters/http/stub"
	"github.com/okian/lcarun/internal/adapters/ipc"
	"github.com/okian/lcarun/internal/app"
	"github.com/okian/lcarun/internal/config"
	"github.com/okian/lcarun/internal/domain/extract"
	"github.com/okian/lcarun/internal/domain/resolve"
	"github.com/okian/lcarun/pkg/metrics"
)

// harness runs a workflow against a stub application over real HTTP.
type harness struct {
	stub     *stub.Server
	server   *httptest.Server
	registry *prometheus.Registry
	metrics  *metrics.Manager
}

func newHarness(opts ...stub.Option) *harness {
	s := stub.New(opts...)
	registry := prometheus.NewRegistry()
	return &harness{
		stub:     s,
		server:   httptest.NewServer(s.Handler()),
		registry: registry,
		metrics:  metrics.NewManager(metrics.WithPrometheusRegistry(registry)),
	}
}

func (h *harness) run(opts ...app.Option) (app.Outcome, error) {
	client := ipc.New(h.server.URL,
		ipc.WithPollInterval(time.Millisecond),
		ipc.WithTimeout(2*time.Second),
		ipc.WithMetrics(h.metrics),
	)
	w := app.New(client, append([]app.Option{app.WithMetrics(h.metrics)}, opts...)...)
	return w.Run(context.Background())
}

func (h *harness) close() {
	h.server.Close()
}

func TestWorkflowRun(t *testing.T) {
	Convey("Given a stub application with the default dataset", t, func() {
		h := newHarness()
		defer h.close()

		Convey("When the workflow runs with defaults", func() {
			out, err := h.run()

			Convey("Then both entities resolve exactly and GWP is extracted", func() {
				So(err, ShouldBeNil)
				So(out.Process.Ref.Name, ShouldEqual, "electric cables")
				So(out.Process.Tier, ShouldEqual, resolve.TierExact)
				So(out.Method.Ref.Name, ShouldEqual, "ILCD 1.0.8 2016 midpoint")
				So(out.Report.Climate, ShouldBeTrue)
				So(len(out.Report.Lines), ShouldEqual, 1)
				So(out.Report.Lines[0].Amount, ShouldAlmostEqual, 3.4512, 1e-9)
				So(out.Report.TechFlow.ProviderID(), ShouldEqual, out.Process.Ref.ID)
			})

			Convey("Then the simulation and the calculation are both disposed", func() {
				So(out.Disposed, ShouldEqual, 2)
				So(h.stub.Open(), ShouldEqual, 0)
			})

			Convey("Then resolutions and impacts are recorded", func() {
				So(seriesCount(h.registry, "lcarun_client_resolutions_total"), ShouldEqual, 2)
				So(seriesCount(h.registry, "lcarun_client_impact_amount"), ShouldEqual, 1)
			})

			Convey("Then the report prints the rounded value", func() {
				var buf bytes.Buffer
				So(app.Render(&buf, out, err, 8080), ShouldBeNil)
				So(buf.String(), ShouldContainSubstring, "GWP100: 3.451 kg CO2 eq\n")
			})
		})

		Convey("When the amount is scaled", func() {
			out, err := h.run(app.WithAmount(2))

			Convey("Then impacts scale with it", func() {
				So(err, ShouldBeNil)
				So(app.FormatAmount(out.Report.Lines[0].Amount), ShouldEqual, "6.902")
			})
		})

		Convey("When simulation is disabled", func() {
			out, err := h.run(app.WithSimulate(false))

			Convey("Then only the calculation handle is disposed", func() {
				So(err, ShouldBeNil)
				So(out.Disposed, ShouldEqual, 1)
			})
		})

		Convey("When the exact process name is missing", func() {
			out, err := h.run(app.WithProcessQuery(resolve.ProcessQuery("electric cable, copper", "electric")))

			Convey("Then the keyword scan finds the cable process", func() {
				So(err, ShouldBeNil)
				So(out.Process.Ref.Name, ShouldEqual, "electric cables")
				So(out.Process.Tier, ShouldEqual, resolve.TierKeyword)
				So(errors.Is(out.Process.LookupErr, ipc.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When no process matches", func() {
			out, err := h.run(app.WithProcessQuery(resolve.ProcessQuery("aluminium", "alu")))

			Convey("Then the run fails before calculating", func() {
				So(errors.Is(err, app.ErrProcess), ShouldBeTrue)
				So(errors.Is(err, resolve.ErrNoMatch), ShouldBeTrue)
				So(out.ResultID, ShouldBeEmpty)
				So(out.Disposed, ShouldEqual, 0)
			})

			Convey("Then the failure is rendered with hints", func() {
				var buf bytes.Buffer
				So(app.Render(&buf, out, err, 8080), ShouldBeNil)
				So(buf.String(), ShouldStartWith, "Error: ")
				So(buf.String(), ShouldContainSubstring, "2. its IPC server is started (port 8080)")
			})
		})

		Convey("When the method matches only a keyword", func() {
			out, err := h.run(app.WithMethodQuery(resolve.MethodQuery("CML 2001", []string{"cml"}, nil)))

			Convey("Then the keyword method and its GWP category are used", func() {
				So(err, ShouldBeNil)
				So(out.Method.Ref.Name, ShouldEqual, "CML-IA baseline")
				So(out.Method.Tier, ShouldEqual, resolve.TierKeyword)
				So(out.Report.Lines[0].Category.Name, ShouldEqual, "Global warming (GWP100a)")
				So(app.FormatAmount(out.Report.Lines[0].Amount), ShouldEqual, "3.300")
			})
		})

		Convey("When the method matches nothing", func() {
			out, err := h.run(app.WithMethodQuery(resolve.MethodQuery("ReCiPe", []string{"recipe"}, nil)))

			Convey("Then the first available method is used", func() {
				So(err, ShouldBeNil)
				So(out.Method.Tier, ShouldEqual, resolve.TierFirst)
				So(out.Method.Ref.Name, ShouldEqual, "ILCD 1.0.8 2016 midpoint")
			})
		})

		Convey("When no category is climate related", func() {
			out, err := h.run(app.WithExtractOptions(extract.Options{ClimateKeywords: []string{"radiation"}}))

			Convey("Then every category of the method is listed", func() {
				So(err, ShouldBeNil)
				So(out.Report.Climate, ShouldBeFalse)
				So(len(out.Report.Lines), ShouldEqual, 3)

				var buf bytes.Buffer
				So(app.Render(&buf, out, err, 8080), ShouldBeNil)
				So(buf.String(), ShouldContainSubstring, "showing impact results:")
				So(buf.String(), ShouldContainSubstring, "Acidification: 0.042 molc H+ eq\n")
			})
		})

		Convey("When the wait times out", func() {
			slow := newHarness(stub.WithReadyAfter(1_000_000))
			defer slow.close()

			out, err := slow.run(app.WithWaitTimeout(20 * time.Millisecond))

			Convey("Then the calculation fails and the handles are still disposed", func() {
				So(errors.Is(err, app.ErrCalculation), ShouldBeTrue)
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
				So(out.Disposed, ShouldEqual, 2)
				So(slow.stub.Open(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a stub application without dispose support", t, func() {
		h := newHarness(stub.WithDispose(false))
		defer h.close()

		out, err := h.run()

		Convey("Then the run succeeds and nothing is released", func() {
			So(err, ShouldBeNil)
			So(out.Disposed, ShouldEqual, 0)
			So(h.stub.Open(), ShouldEqual, 2)
		})
	})

	Convey("Given no application listening", t, func() {
		h := newHarness()
		h.close()

		_, err := h.run()

		Convey("Then the run fails at the process lookup with a transport error", func() {
			So(errors.Is(err, app.ErrProcess), ShouldBeTrue)
			So(errors.Is(err, ipc.ErrTransport), ShouldBeTrue)
		})
	})
}

func TestFromConfig(t *testing.T) {
	Convey("Given a config with custom queries", t, func() {
		h := newHarness()
		defer h.close()

		cfg := config.New()
		cfg.ProcessName = "steel, low-alloyed"
		cfg.MethodName = "CML-IA baseline"
		cfg.Simulate = false

		out, err := h.run(app.FromConfig(cfg)...)

		Convey("Then the workflow follows it", func() {
			So(err, ShouldBeNil)
			So(out.Process.Ref.Name, ShouldEqual, "steel, low-alloyed")
			So(out.Method.Ref.Name, ShouldEqual, "CML-IA baseline")
			So(out.Disposed, ShouldEqual, 1)
			So(app.FormatAmount(out.Report.Lines[0].Amount), ShouldEqual, "1.850")
		})
	})
}

// seriesCount returns how many series of the named metric were gathered.
func seriesCount(g prometheus.Gatherer, name string) int {
	n, err := testutil.GatherAndCount(g, name)
	if err != nil {
		return -1
	}
	return n
}
