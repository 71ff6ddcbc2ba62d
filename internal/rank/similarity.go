package rank

import (
	"math"
	"sort"

	"coderag/internal/domain"
)

// Signature returns the first n runes of text.
func Signature(text string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range text {
		if count == n {
			return text[:i]
		}
		count++
	}
	return text
}

// Cosine returns the cosine similarity of a and b clamped to [-1, 1].
// ok is false when either vector is empty or all zero, the lengths
// differ, or a component is not finite. Each vector is scaled by its
// largest magnitude first so tiny or huge components neither underflow
// nor overflow.
func Cosine(a, b []float64) (sim float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	sa, sb := maxAbs(a), maxAbs(b)
	if sa == 0 || sb == 0 || math.IsInf(sa, 0) || math.IsInf(sb, 0) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := a[i]/sa, b[i]/sb
		dot += x * y
		na += x * x
		nb += y * y
	}
	sim = dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(sim) {
		return 0, false
	}
	return math.Max(-1, math.Min(1, sim)), true
}

func maxAbs(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		if math.IsNaN(x) {
			return math.NaN()
		}
		m = math.Max(m, math.Abs(x))
	}
	return m
}

// TopK returns up to k documents with the highest similarity, in
// descending order with ties kept in input order. If no document is
// scored it falls back to the first k documents as given.
func TopK(docs []domain.RawDoc, k int) []domain.RawDoc {
	if k <= 0 || len(docs) == 0 {
		return nil
	}
	scored := make([]domain.RawDoc, 0, len(docs))
	for _, d := range docs {
		if d.Similarity != nil {
			scored = append(scored, d)
		}
	}
	if len(scored) == 0 {
		return append([]domain.RawDoc(nil), docs[:min(k, len(docs))]...)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return *scored[i].Similarity > *scored[j].Similarity
	})
	return scored[:min(k, len(scored))]
}

// Ordered returns docs sorted by similarity, unscored last.
func Ordered(docs []domain.RawDoc) []domain.RawDoc {
	out := append([]domain.RawDoc(nil), docs...)
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].Similarity, out[j].Similarity
		switch {
		case si == nil:
			return false
		case sj == nil:
			return true
		default:
			return *si > *sj
		}
	})
	return out
}

// URLs returns the URL of every document in order.
func URLs(docs []domain.RawDoc) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.URL)
	}
	return out
}
