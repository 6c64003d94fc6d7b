package field

// Ring holds three equally sized snapshots and rotates them instead of
// copying. After Shift, the old center becomes Minus, the old Plus becomes
// Center, and the stale Minus slot is handed out as the next Plus.
type Ring struct {
	slots [3][]float64
	head  int
}

func NewRing(n int) *Ring {
	r := &Ring{}
	r.Resize(n)
	return r
}

func (r *Ring) Minus() []float64  { return r.slots[r.head] }
func (r *Ring) Center() []float64 { return r.slots[(r.head+1)%3] }
func (r *Ring) Plus() []float64   { return r.slots[(r.head+2)%3] }

func (r *Ring) Len() int { return len(r.slots[0]) }

func (r *Ring) Shift() {
	r.head = (r.head + 1) % 3
}

// Resize reallocates every slot zeroed when n differs from the current
// element count and reports whether it did.
func (r *Ring) Resize(n int) bool {
	if n == len(r.slots[0]) && r.slots[0] != nil {
		return false
	}
	for i := range r.slots {
		r.slots[i] = make([]float64, n)
	}
	r.head = 0
	return true
}
