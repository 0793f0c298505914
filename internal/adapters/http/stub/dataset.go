package stub

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/lcarun/internal/domain/schema"
)

// Dataset is the in-memory database the stub serves.
type Dataset struct {
	Processes []ProcessSpec `koanf:"processes"`
	Methods   []MethodSpec  `koanf:"methods"`
}

// ProcessSpec describes a process and the upstream processes supplying it.
type ProcessSpec struct {
	ID        string   `koanf:"id"`
	Name      string   `koanf:"name"`
	Category  string   `koanf:"category"`
	Providers []string `koanf:"providers"`
}

// MethodSpec describes an impact assessment method.
type MethodSpec struct {
	ID         string         `koanf:"id"`
	Name       string         `koanf:"name"`
	Categories []CategorySpec `koanf:"categories"`
}

// CategorySpec describes an impact category. Factors maps a process id to
// the total impact per unit of that process's output.
type CategorySpec struct {
	ID      string             `koanf:"id"`
	Name    string             `koanf:"name"`
	RefUnit string             `koanf:"ref_unit"`
	Factors map[string]float64 `koanf:"factors"`
}

func (p ProcessSpec) ref() schema.Ref {
	return schema.Ref{Type: schema.RefProcess, ID: p.ID, Name: p.Name, Category: p.Category}
}

func (m MethodSpec) ref() schema.Ref {
	return schema.Ref{Type: schema.RefImpactMethod, ID: m.ID, Name: m.Name}
}

func (c CategorySpec) ref() schema.Ref {
	return schema.Ref{Type: schema.RefImpactCategory, ID: c.ID, Name: c.Name, RefUnit: c.RefUnit}
}

// LoadDataset reads a dataset from a YAML file.
func LoadDataset(path string) (*Dataset, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataset, err)
	}

	var ds Dataset
	if err := k.UnmarshalWithConf("", &ds, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataset, err)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Validate checks ids are present and unique per entity type.
func (d *Dataset) Validate() error {
	seen := make(map[string]bool)
	for _, p := range d.Processes {
		if p.ID == "" || seen["p:"+p.ID] {
			return fmt.Errorf("%w: missing or duplicate process id %q", ErrDataset, p.ID)
		}
		seen["p:"+p.ID] = true
	}
	for _, m := range d.Methods {
		if m.ID == "" || seen["m:"+m.ID] {
			return fmt.Errorf("%w: missing or duplicate method id %q", ErrDataset, m.ID)
		}
		seen["m:"+m.ID] = true
	}
	return nil
}

func (d *Dataset) process(id string) (ProcessSpec, bool) {
	for _, p := range d.Processes {
		if p.ID == id {
			return p, true
		}
	}
	return ProcessSpec{}, false
}

func (d *Dataset) method(id string) (MethodSpec, bool) {
	for _, m := range d.Methods {
		if m.ID == id {
			return m, true
		}
	}
	return MethodSpec{}, false
}

// descriptor finds a descriptor by id or exact name.
func (d *Dataset) descriptor(t schema.RefType, id, name string) (schema.Ref, bool) {
	match := func(ref schema.Ref) bool {
		if id != "" {
			return ref.ID == id
		}
		return ref.Name == name
	}
	for _, ref := range d.descriptors(t) {
		if match(ref) {
			return ref, true
		}
	}
	return schema.Ref{}, false
}

func (d *Dataset) descriptors(t schema.RefType) []schema.Ref {
	var refs []schema.Ref
	switch t {
	case schema.RefProcess:
		for _, p := range d.Processes {
			refs = append(refs, p.ref())
		}
	case schema.RefImpactMethod:
		for _, m := range d.Methods {
			refs = append(refs, m.ref())
		}
	case schema.RefImpactCategory:
		for _, m := range d.Methods {
			for _, c := range m.Categories {
				refs = append(refs, c.ref())
			}
		}
	}
	return refs
}

// knownType reports whether the stub serves descriptors of the type.
func knownType(t string) bool {
	switch schema.RefType(strings.TrimSpace(t)) {
	case schema.RefProcess, schema.RefImpactMethod, schema.RefImpactCategory:
		return true
	}
	return false
}

// DefaultDataset returns a small cable production system with an ILCD
// midpoint method.
func DefaultDataset() *Dataset {
	const (
		cables = "0b2ee8a3-77c1-4c3e-a1a5-2f1a4e6bb001"
		copper = "0b2ee8a3-77c1-4c3e-a1a5-2f1a4e6bb002"
		pvc    = "0b2ee8a3-77c1-4c3e-a1a5-2f1a4e6bb003"
		steel  = "0b2ee8a3-77c1-4c3e-a1a5-2f1a4e6bb004"
	)
	return &Dataset{
		Processes: []ProcessSpec{
			{ID: copper, Name: "copper wire drawing", Category: "metals"},
			{ID: pvc, Name: "polyvinylchloride production", Category: "plastics"},
			{ID: cables, Name: "electric cables", Category: "electronics", Providers: []string{copper, pvc}},
			{ID: steel, Name: "steel, low-alloyed", Category: "metals"},
		},
		Methods: []MethodSpec{
			{
				ID:   "9f1c7d52-4a0e-4d55-8c5e-7c1f2b3d4e01",
				Name: "ILCD 1.0.8 2016 midpoint",
				Categories: []CategorySpec{
					{
						ID: "c0000000-0000-0000-0000-000000000001", Name: "Climate change", RefUnit: "kg CO2 eq",
						Factors: map[string]float64{cables: 3.4512, copper: 2.1, pvc: 0.92, steel: 1.89},
					},
					{
						ID: "c0000000-0000-0000-0000-000000000002", Name: "Ozone depletion", RefUnit: "kg CFC-11 eq",
						Factors: map[string]float64{cables: 1.2e-7, copper: 8.0e-8, pvc: 2.0e-8, steel: 5.0e-8},
					},
					{
						ID: "c0000000-0000-0000-0000-000000000003", Name: "Acidification", RefUnit: "molc H+ eq",
						Factors: map[string]float64{cables: 0.0421, copper: 0.031, pvc: 0.004, steel: 0.0077},
					},
				},
			},
			{
				ID:   "9f1c7d52-4a0e-4d55-8c5e-7c1f2b3d4e02",
				Name: "CML-IA baseline",
				Categories: []CategorySpec{
					{
						ID: "c0000000-0000-0000-0000-000000000011", Name: "Global warming (GWP100a)", RefUnit: "kg CO2 eq",
						Factors: map[string]float64{cables: 3.3, copper: 2.0, pvc: 0.9, steel: 1.85},
					},
				},
			},
		},
	}
}
