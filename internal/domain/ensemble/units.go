package ensemble

// Default combination weights for the stock unit set.
const (
	DefaultFormWeight = 0.3
	DefaultGridWeight = 0.4
	DefaultPaceWeight = 0.3
)

// NewDefaultUnits builds the stock trainable unit set: form, grid and pace.
func NewDefaultUnits() []Trainable {
	return []Trainable{
		NewFormUnit(DefaultFormWeight),
		NewGridUnit(DefaultGridWeight),
		NewPaceUnit(DefaultPaceWeight),
	}
}

// AsUnits widens a trainable set to the plain Unit slice the combiner takes.
func AsUnits(trainables []Trainable) []Unit {
	units := make([]Unit, len(trainables))
	for i, t := range trainables {
		units[i] = t
	}
	return units
}
