package diff

// Similarity scores content closeness as the Dice coefficient over byte
// bigrams: 2·|bigrams(a) ∩ bigrams(b)| / (|bigrams(a)| + |bigrams(b)|),
// with multiset intersection. A small edit to a large chunk scores near 1,
// a full rewrite near 0. Inputs shorter than two bytes fall back to whole-
// value comparison.
func Similarity(a, b []byte) float32 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) < 2 || len(b) < 2 {
		if string(a) == string(b) {
			return 1
		}
		return 0
	}

	grams := make(map[[2]byte]int, len(a)-1)
	for i := 0; i+1 < len(a); i++ {
		grams[[2]byte{a[i], a[i+1]}]++
	}

	intersection := 0
	for i := 0; i+1 < len(b); i++ {
		g := [2]byte{b[i], b[i+1]}
		if grams[g] > 0 {
			grams[g]--
			intersection++
		}
	}

	total := (len(a) - 1) + (len(b) - 1)
	return float32(2*intersection) / float32(total)
}
