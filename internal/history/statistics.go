package history

import "time"

// Bucket is one point of a GetStatistics histogram: a representative value
// and the fraction of samples that fell within its span.
type Bucket struct {
	Value    float64
	Accuracy float64
}

const statisticsBucketCount = 10

// GetStatistics buckets the full persisted series into a small histogram,
// per §4.6. Accuracy is the fraction of all persisted samples landing in
// that bucket's value span.
func (s *Store) GetStatistics(identityHash string, kind SeriesKind) ([]Bucket, error) {
	samples, err := s.readPersisted(identityHash, kind, time.Unix(0, 0))
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}

	min, max := samples[0].Value, samples[0].Value
	for _, s := range samples {
		if s.Value < min {
			min = s.Value
		}
		if s.Value > max {
			max = s.Value
		}
	}
	span := max - min
	if span == 0 {
		return []Bucket{{Value: min, Accuracy: 1.0}}, nil
	}

	counts := make([]int, statisticsBucketCount)
	for _, s := range samples {
		idx := int((s.Value - min) / span * float64(statisticsBucketCount))
		if idx >= statisticsBucketCount {
			idx = statisticsBucketCount - 1
		}
		counts[idx]++
	}

	buckets := make([]Bucket, 0, statisticsBucketCount)
	for i, c := range counts {
		if c == 0 {
			continue
		}
		mid := min + span*(float64(i)+0.5)/statisticsBucketCount
		buckets = append(buckets, Bucket{Value: mid, Accuracy: float64(c) / float64(len(samples))})
	}
	return buckets, nil
}
