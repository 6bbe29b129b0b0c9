package generic

// Void is a zero-size placeholder value, for maps used as sets and results with no value.
type Void struct{}

func NewVoid() Void {
	return Void{}
}
