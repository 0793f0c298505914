package stub

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/lcarun/internal/domain/schema"
)

const datasetYAML = `
processes:
  - id: p-1
    name: aluminium ingot
    category: metals
  - id: p-2
    name: electric motor
    providers: [p-1]
methods:
  - id: m-1
    name: EF 3.1
    categories:
      - id: c-1
        name: Climate change
        ref_unit: kg CO2 eq
        factors:
          p-1: 11.5
          p-2: 42.25
`

func writeDataset(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataset.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	return path
}

func TestLoadDataset(t *testing.T) {
	Convey("Given a dataset file", t, func() {
		Convey("When it is well formed", func() {
			ds, err := LoadDataset(writeDataset(t, datasetYAML))

			Convey("Then processes, methods and factors are loaded", func() {
				So(err, ShouldBeNil)
				So(len(ds.Processes), ShouldEqual, 2)
				So(ds.Processes[1].Providers, ShouldResemble, []string{"p-1"})
				So(ds.Methods[0].Categories[0].RefUnit, ShouldEqual, "kg CO2 eq")
				So(ds.Methods[0].Categories[0].Factors["p-2"], ShouldEqual, 42.25)
			})

			Convey("Then descriptors are served from it", func() {
				ref, ok := ds.descriptor(schema.RefProcess, "", "electric motor")
				So(ok, ShouldBeTrue)
				So(ref.ID, ShouldEqual, "p-2")

				_, ok = ds.descriptor(schema.RefImpactMethod, "m-2", "")
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When ids are duplicated", func() {
			_, err := LoadDataset(writeDataset(t, `
processes:
  - id: p-1
    name: a
  - id: p-1
    name: b
`))

			Convey("Then it is rejected", func() {
				So(errors.Is(err, ErrDataset), ShouldBeTrue)
			})
		})

		Convey("When the file does not exist", func() {
			_, err := LoadDataset(filepath.Join(t.TempDir(), "missing.yaml"))

			Convey("Then a dataset error is returned", func() {
				So(errors.Is(err, ErrDataset), ShouldBeTrue)
			})
		})
	})
}

func TestDefaultDataset(t *testing.T) {
	Convey("Given the default dataset", t, func() {
		ds := DefaultDataset()

		Convey("Then it validates", func() {
			So(ds.Validate(), ShouldBeNil)
		})

		Convey("Then the cable process is not the first process", func() {
			So(ds.Processes[0].Name, ShouldNotEqual, "electric cables")
			_, ok := ds.descriptor(schema.RefProcess, "", "electric cables")
			So(ok, ShouldBeTrue)
		})
	})
}
