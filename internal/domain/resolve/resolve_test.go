package resolve_test

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/lcarun/internal/domain/resolve"
	"github.com/okian/lcarun/internal/domain/schema"
)

var errNotFound = errors.New("not found")

// fakeCatalog is an in-memory Catalog that records its calls.
type fakeCatalog struct {
	refs     map[schema.RefType][]schema.Ref
	findErr  error
	listErr  error
	findHits int
	listHits int
}

func (f *fakeCatalog) Find(_ context.Context, t schema.RefType, name string) (schema.Ref, error) {
	f.findHits++
	if f.findErr != nil {
		return schema.Ref{}, f.findErr
	}
	for _, r := range f.refs[t] {
		if r.Name == name {
			return r, nil
		}
	}
	return schema.Ref{}, errNotFound
}

func (f *fakeCatalog) Descriptors(_ context.Context, t schema.RefType) ([]schema.Ref, error) {
	f.listHits++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.refs[t], nil
}

func proc(id, name string) schema.Ref {
	return schema.Ref{Type: schema.RefProcess, ID: id, Name: name}
}

func method(id, name string) schema.Ref {
	return schema.Ref{Type: schema.RefImpactMethod, ID: id, Name: name}
}

func TestResolveProcess(t *testing.T) {
	Convey("Given a catalog of processes", t, func() {
		ctx := context.Background()
		catalog := &fakeCatalog{refs: map[schema.RefType][]schema.Ref{
			schema.RefProcess: {
				proc("p1", "steel production"),
				proc("p2", "Electricity, medium voltage"),
				proc("p3", "electric cables"),
			},
		}}

		Convey("When the exact name exists", func() {
			m, err := resolve.Process(ctx, catalog, resolve.ProcessQuery("electric cables", "electric"))

			Convey("Then the exact match is used without listing", func() {
				So(err, ShouldBeNil)
				So(m.Ref.ID, ShouldEqual, "p3")
				So(m.Tier, ShouldEqual, resolve.TierExact)
				So(catalog.listHits, ShouldEqual, 0)
			})
		})

		Convey("When the exact name is missing", func() {
			m, err := resolve.Process(ctx, catalog, resolve.ProcessQuery("electric cable, copper", "electric"))

			Convey("Then the first case-insensitive keyword hit in catalog order is used", func() {
				So(err, ShouldBeNil)
				So(m.Ref.ID, ShouldEqual, "p2")
				So(m.Tier, ShouldEqual, resolve.TierKeyword)
				So(errors.Is(m.LookupErr, errNotFound), ShouldBeTrue)
			})
		})

		Convey("When the exact lookup fails with a transport error", func() {
			catalog.findErr = errors.New("connection refused")
			m, err := resolve.Process(ctx, catalog, resolve.ProcessQuery("electric cables", "ELECTRIC"))

			Convey("Then the keyword scan still runs", func() {
				So(err, ShouldBeNil)
				So(m.Ref.ID, ShouldEqual, "p2")
				So(m.LookupErr, ShouldNotBeNil)
			})
		})

		Convey("When nothing matches the keywords", func() {
			_, err := resolve.Process(ctx, catalog, resolve.ProcessQuery("aluminium", "alu"))

			Convey("Then it fails with ErrNoMatch, never taking the first process", func() {
				So(errors.Is(err, resolve.ErrNoMatch), ShouldBeTrue)
			})
		})

		Convey("When listing fails", func() {
			catalog.listErr = errors.New("boom")
			_, err := resolve.Process(ctx, catalog, resolve.ProcessQuery("aluminium", "alu"))

			Convey("Then the listing error is returned", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "boom")
				So(errors.Is(err, resolve.ErrNoMatch), ShouldBeFalse)
			})
		})

		Convey("When the context is cancelled during the exact lookup", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := resolve.Process(cctx, catalog, resolve.ProcessQuery("missing", "electric"))

			Convey("Then the fallback scan is skipped", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(catalog.listHits, ShouldEqual, 0)
			})
		})
	})
}

func TestResolveMethod(t *testing.T) {
	Convey("Given a catalog of methods", t, func() {
		ctx := context.Background()
		catalog := &fakeCatalog{refs: map[schema.RefType][]schema.Ref{
			schema.RefImpactMethod: {
				method("m1", "CML-IA baseline"),
				method("m2", "EF 3.0 (2016 revision)"),
				method("m3", "ILCD 2011 Midpoint+"),
			},
		}}

		Convey("When the exact name is missing", func() {
			m, err := resolve.Method(ctx, catalog, resolve.MethodQuery("ILCD 1.0.8 2016 midpoint", []string{"ilcd"}, []string{"2016"}))

			Convey("Then the first method matching either keyword set wins", func() {
				So(err, ShouldBeNil)
				So(m.Ref.ID, ShouldEqual, "m2")
				So(m.Tier, ShouldEqual, resolve.TierKeyword)
			})
		})

		Convey("When raw keywords are case-sensitive", func() {
			m, err := resolve.Method(ctx, catalog, resolve.MethodQuery("none", nil, []string{"midpoint"}))

			Convey("Then a differently cased name is not a keyword hit", func() {
				So(err, ShouldBeNil)
				So(m.Tier, ShouldEqual, resolve.TierFirst)
				So(m.Ref.ID, ShouldEqual, "m1")
			})
		})

		Convey("When no keyword matches", func() {
			m, err := resolve.Method(ctx, catalog, resolve.MethodQuery("ReCiPe", []string{"recipe"}, nil))

			Convey("Then the first available method is used", func() {
				So(err, ShouldBeNil)
				So(m.Ref.ID, ShouldEqual, "m1")
				So(m.Tier, ShouldEqual, resolve.TierFirst)
			})
		})

		Convey("When the catalog has no methods", func() {
			catalog.refs[schema.RefImpactMethod] = nil
			_, err := resolve.Method(ctx, catalog, resolve.MethodQuery("ReCiPe", []string{"recipe"}, nil))

			Convey("Then it fails with ErrNoMatch", func() {
				So(errors.Is(err, resolve.ErrNoMatch), ShouldBeTrue)
			})
		})

		Convey("When no name is given", func() {
			m, err := resolve.Method(ctx, catalog, resolve.MethodQuery("", []string{"cml"}, nil))

			Convey("Then the exact lookup is skipped", func() {
				So(err, ShouldBeNil)
				So(m.Ref.ID, ShouldEqual, "m1")
				So(catalog.findHits, ShouldEqual, 0)
				So(m.LookupErr, ShouldBeNil)
			})
		})
	})
}

func TestContainsAny(t *testing.T) {
	Convey("Given keyword matching", t, func() {
		So(resolve.ContainsAny("Electric Cables", []string{"electric"}, nil), ShouldBeTrue)
		So(resolve.ContainsAny("ILCD 2011", nil, []string{"2016"}), ShouldBeFalse)
		So(resolve.ContainsAny("anything", []string{""}, []string{""}), ShouldBeFalse)
		So(resolve.ContainsAny("气候变化", []string{"气候"}, nil), ShouldBeTrue)
	})
}
