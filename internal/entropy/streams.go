package entropy

// Op names the kind of decision a keyed stream serves.
type Op uint64

const (
	OpSeeding      Op = 1
	OpContact      Op = 2
	OpTransmission Op = 3
	OpProgression  Op = 4
)

// Streams hands out the Source for a given (step, id, op) decision.
type Streams interface {
	For(step, id int, op Op) Source
}

// Shared returns one sequential stream for every key. Draw order then follows
// call order, which pins evaluation to a single goroutine.
type Shared struct {
	S *Stream
}

// NewShared creates a Shared stream set from seed.
func NewShared(seed int64) *Shared {
	return &Shared{S: NewStream(seed)}
}

func (s *Shared) For(int, int, Op) Source {
	return s.S
}

// Keyed derives an independent stream per (step, id, op), so decisions can be
// evaluated in any order or in parallel with the same result.
type Keyed struct {
	Seed int64
}

// NewKeyed creates a Keyed stream set from seed.
func NewKeyed(seed int64) *Keyed {
	return &Keyed{Seed: seed}
}

func (k *Keyed) For(step, id int, op Op) Source {
	return Derive(k.Seed, step, id, op)
}

// Derive returns the stream keyed by (seed, step, id, op):
//
//	h = mix(seed); h = mix(h ^ step); h = mix(h ^ id); h = mix(h ^ op)
//	stream = PCG(h, mix(h ^ 0x9e3779b97f4a7c15))
//
// where mix is the splitmix64 finaliser. Golden runs depend on this exact chain.
func Derive(seed int64, step, id int, op Op) *Stream {
	h := mix(uint64(seed))
	h = mix(h ^ uint64(step))
	h = mix(h ^ uint64(id))
	h = mix(h ^ uint64(op))
	return newStreamFromState(h)
}
