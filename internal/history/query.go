package history

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetHistory returns samples covering the requested duration, downsampled
// so that at most resolution points are returned and consecutive points
// are spaced at least duration/resolution apart. Samples are drawn from
// the in-memory ring first (freshest data) and backfilled from the
// persisted file for anything older than the ring's window.
func (s *Store) GetHistory(identityHash string, kind SeriesKind, duration time.Duration, resolution int) ([]Sample, error) {
	if resolution <= 0 {
		resolution = 1
	}
	now := time.Now()
	cutoff := now.Add(-duration)

	s.mu.Lock()
	r, ok := s.rings[ringKey(identityHash, kind)]
	var recent []Sample
	if ok {
		recent = r.since(cutoff)
	}
	s.mu.Unlock()

	persisted, err := s.readPersisted(identityHash, kind, cutoff)
	if err != nil {
		return nil, err
	}

	oldestRecent := cutoff.Unix()
	if len(recent) > 0 {
		oldestRecent = recent[0].Time
	}
	merged := make([]Sample, 0, len(persisted)+len(recent))
	for _, p := range persisted {
		if p.Time < oldestRecent {
			merged = append(merged, p)
		}
	}
	merged = append(merged, recent...)

	return downsample(merged, duration, resolution), nil
}

func (s *Store) readPersisted(identityHash string, kind SeriesKind, cutoff time.Time) ([]Sample, error) {
	lines, err := readLines(s.seriesPath(identityHash, kind))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	cut := cutoff.Unix()
	var out []Sample
	for _, line := range lines {
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			continue
		}
		ts, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil || ts < cut {
			continue
		}
		value, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		out = append(out, Sample{Time: ts, Value: value, StateTag: fields[2]})
	}
	return out, nil
}

// downsample enforces the ≥ duration/resolution point spacing invariant by
// greedily keeping a point only once that much time has passed since the
// last kept point.
func downsample(samples []Sample, duration time.Duration, resolution int) []Sample {
	if len(samples) == 0 {
		return nil
	}
	minSpacing := int64(duration.Seconds()) / int64(resolution)
	if minSpacing < 1 {
		minSpacing = 1
	}
	out := make([]Sample, 0, resolution)
	var lastKept int64 = samples[0].Time - minSpacing - 1
	for _, s := range samples {
		if s.Time-lastKept >= minSpacing {
			out = append(out, s)
			lastKept = s.Time
			if len(out) >= resolution {
				break
			}
		}
	}
	return out
}
