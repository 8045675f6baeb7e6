package model

import (
	"fmt"
	"strings"
)

// Allowed restricts which transfer families an optimizer may instantiate.
type Allowed int

const (
	ContinuousOnly Allowed = iota + 1
	BinaryOnly
	DiscreteOnly
	ReluOnly
)

var allowedNames = map[Allowed]string{
	ContinuousOnly: "continuous_only",
	BinaryOnly:     "binary_only",
	DiscreteOnly:   "discrete_only",
	ReluOnly:       "relu_only",
}

func (a Allowed) String() string {
	if name, ok := allowedNames[a]; ok {
		return name
	}
	return fmt.Sprintf("allowed(%d)", int(a))
}

// Families lists the transfer families admitted by the constraint, in a
// fixed order.
func (a Allowed) Families() []Family {
	switch a {
	case ContinuousOnly:
		return []Family{FamilyLinear, FamilyTanh, FamilyRelu}
	case BinaryOnly:
		return []Family{FamilyStep}
	case DiscreteOnly:
		return []Family{FamilyStep, FamilySchmitt, FamilyQuantizer}
	case ReluOnly:
		return []Family{FamilyRelu}
	default:
		return nil
	}
}

// Permits reports whether family may be instantiated under the constraint.
func (a Allowed) Permits(family Family) bool {
	for _, f := range a.Families() {
		if f == family {
			return true
		}
	}
	return false
}

func ParseAllowed(raw string) (Allowed, error) {
	for value, name := range allowedNames {
		if strings.EqualFold(strings.TrimSpace(raw), name) {
			return value, nil
		}
	}
	return 0, configErrorf("allowed", raw, "expected continuous_only|binary_only|discrete_only|relu_only")
}

func (a Allowed) MarshalText() ([]byte, error) {
	if _, ok := allowedNames[a]; !ok {
		return nil, configErrorf("allowed", a.String(), "unknown value")
	}
	return []byte(a.String()), nil
}

func (a *Allowed) UnmarshalText(text []byte) error {
	parsed, err := ParseAllowed(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Family is a transfer-function shape. The set is closed.
type Family int

const (
	FamilyLinear Family = iota + 1
	FamilyTanh
	FamilyRelu
	FamilyStep
	FamilySchmitt
	FamilyQuantizer
)

var familyNames = map[Family]string{
	FamilyLinear:    "linear",
	FamilyTanh:      "tanh",
	FamilyRelu:      "relu",
	FamilyStep:      "step",
	FamilySchmitt:   "schmitt",
	FamilyQuantizer: "quantizer",
}

func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return fmt.Sprintf("family(%d)", int(f))
}

func ParseFamily(raw string) (Family, error) {
	for value, name := range familyNames {
		if strings.EqualFold(strings.TrimSpace(raw), name) {
			return value, nil
		}
	}
	return 0, configErrorf("family", raw, "expected linear|tanh|relu|step|schmitt|quantizer")
}

func (f Family) MarshalText() ([]byte, error) {
	if _, ok := familyNames[f]; !ok {
		return nil, configErrorf("family", f.String(), "unknown value")
	}
	return []byte(f.String()), nil
}

func (f *Family) UnmarshalText(text []byte) error {
	parsed, err := ParseFamily(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// EnergyModel selects how a trial's output trajectory is priced.
type EnergyModel int

const (
	EnergyBase EnergyModel = iota + 1
	EnergyAsym
	EnergyLeak
)

var energyModelNames = map[EnergyModel]string{
	EnergyBase: "base",
	EnergyAsym: "asym",
	EnergyLeak: "leak",
}

func (m EnergyModel) String() string {
	if name, ok := energyModelNames[m]; ok {
		return name
	}
	return fmt.Sprintf("energy_model(%d)", int(m))
}

func ParseEnergyModel(raw string) (EnergyModel, error) {
	for value, name := range energyModelNames {
		if strings.EqualFold(strings.TrimSpace(raw), name) {
			return value, nil
		}
	}
	return 0, configErrorf("energy_model", raw, "expected base|asym|leak")
}

func (m EnergyModel) MarshalText() ([]byte, error) {
	if _, ok := energyModelNames[m]; !ok {
		return nil, configErrorf("energy_model", m.String(), "unknown value")
	}
	return []byte(m.String()), nil
}

func (m *EnergyModel) UnmarshalText(text []byte) error {
	parsed, err := ParseEnergyModel(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

type OptimizerKind int

const (
	OptimizerGA OptimizerKind = iota + 1
	OptimizerRandom
	OptimizerCMAES
)

var optimizerNames = map[OptimizerKind]string{
	OptimizerGA:     "ga",
	OptimizerRandom: "random",
	OptimizerCMAES:  "cmaes",
}

func (k OptimizerKind) String() string {
	if name, ok := optimizerNames[k]; ok {
		return name
	}
	return fmt.Sprintf("optimizer(%d)", int(k))
}

func ParseOptimizerKind(raw string) (OptimizerKind, error) {
	for value, name := range optimizerNames {
		if strings.EqualFold(strings.TrimSpace(raw), name) {
			return value, nil
		}
	}
	return 0, configErrorf("optimizer", raw, "expected ga|random|cmaes")
}

func (k OptimizerKind) MarshalText() ([]byte, error) {
	if _, ok := optimizerNames[k]; !ok {
		return nil, configErrorf("optimizer", k.String(), "unknown value")
	}
	return []byte(k.String()), nil
}

func (k *OptimizerKind) UnmarshalText(text []byte) error {
	parsed, err := ParseOptimizerKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

type FitnessKind int

const (
	FitnessTask FitnessKind = iota + 1
	FitnessReg
	FitnessInfo
)

var fitnessNames = map[FitnessKind]string{
	FitnessTask: "task",
	FitnessReg:  "reg",
	FitnessInfo: "info",
}

func (k FitnessKind) String() string {
	if name, ok := fitnessNames[k]; ok {
		return name
	}
	return fmt.Sprintf("fitness(%d)", int(k))
}

func ParseFitnessKind(raw string) (FitnessKind, error) {
	for value, name := range fitnessNames {
		if strings.EqualFold(strings.TrimSpace(raw), name) {
			return value, nil
		}
	}
	return 0, configErrorf("fitness", raw, "expected task|reg|info")
}

func (k FitnessKind) MarshalText() ([]byte, error) {
	if _, ok := fitnessNames[k]; !ok {
		return nil, configErrorf("fitness", k.String(), "unknown value")
	}
	return []byte(k.String()), nil
}

func (k *FitnessKind) UnmarshalText(text []byte) error {
	parsed, err := ParseFitnessKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
