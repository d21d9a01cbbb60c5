package temperature

import (
	"context"
	"database/sql"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/ferment-controller/db"
	"github.com/thatsimonsguy/ferment-controller/internal/model"
)

// stableSamples is how many consecutive rejected readings must agree before they are taken as a new baseline.
const stableSamples = 3

type history struct {
	lastGood     *model.Reading
	lastObserved time.Time
	rejected     []float64
	anomalyCount int
	disabled     bool
}

// Service reads the latest temperature from the readings table and filters single-sample spikes.
// A rejected reading yields the last good reading, whose age keeps counting towards staleness.
type Service struct {
	dbConn       *sql.DB
	mutex        sync.Mutex
	history      map[string]*history
	maxDelta     float64
	maxAnomalies int
}

// NewService returns a reader. A maxDelta of zero disables spike filtering.
func NewService(dbConn *sql.DB, maxDelta float64, maxAnomalies int) *Service {
	if maxAnomalies < 1 {
		maxAnomalies = 1
	}
	return &Service{
		dbConn:       dbConn,
		history:      make(map[string]*history),
		maxDelta:     maxDelta,
		maxAnomalies: maxAnomalies,
	}
}

// Latest returns the newest acceptable reading for the sensor, or for any sensor when sensorID is empty.
// It returns nil without error when no reading exists yet.
func (s *Service) Latest(sensorID string) (*model.Reading, error) {
	reading, err := db.GetLatestReading(s.dbConn, sensorID)
	if err != nil || reading == nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	h := s.history[reading.SourceID]
	if h == nil {
		h = &history{}
		s.history[reading.SourceID] = h
	}

	// Same row as last cycle: answer without counting it twice.
	if h.lastObserved.Equal(reading.ObservedAt) {
		return copyReading(h.lastGood), nil
	}
	h.lastObserved = reading.ObservedAt

	if s.processReading(h, *reading) {
		log.Debug().
			Str("sensor_id", reading.SourceID).
			Float64("temp", reading.Temperature).
			Msg("Temperature reading accepted")
		return copyReading(h.lastGood), nil
	}

	log.Warn().
		Str("sensor_id", reading.SourceID).
		Float64("temp", reading.Temperature).
		Int("anomalies", h.anomalyCount).
		Msg("Temperature reading rejected as anomalous")
	return copyReading(h.lastGood), nil
}

// processReading reports whether the reading was accepted as the new good value.
func (s *Service) processReading(h *history, r model.Reading) bool {
	if h.lastGood == nil || s.maxDelta <= 0 || math.Abs(r.Temperature-h.lastGood.Temperature) <= s.maxDelta {
		s.accept(h, r)
		return true
	}

	h.anomalyCount++
	h.rejected = append(h.rejected, r.Temperature)
	if len(h.rejected) > stableSamples {
		h.rejected = h.rejected[len(h.rejected)-stableSamples:]
	}

	if s.stableNewBaseline(h) {
		log.Info().
			Str("sensor_id", r.SourceID).
			Float64("temp", r.Temperature).
			Msg("Stable new baseline detected, accepting temperature")
		s.accept(h, r)
		return true
	}

	if h.anomalyCount >= s.maxAnomalies && !h.disabled {
		h.disabled = true
		log.Error().
			Str("sensor_id", r.SourceID).
			Float64("temp", r.Temperature).
			Float64("last_good", h.lastGood.Temperature).
			Int("anomalies", h.anomalyCount).
			Msg("Sensor producing anomalous readings, holding last good value")
	}
	return false
}

func (s *Service) accept(h *history, r model.Reading) {
	if h.disabled {
		log.Info().Str("sensor_id", r.SourceID).Msg("Sensor recovered")
	}
	h.lastGood = &r
	h.anomalyCount = 0
	h.rejected = h.rejected[:0]
	h.disabled = false
}

// stableNewBaseline reports whether the recent rejected readings agree with each other closely enough
// to be a real shift rather than noise.
func (s *Service) stableNewBaseline(h *history) bool {
	if len(h.rejected) < stableSamples {
		return false
	}

	var sum float64
	for _, t := range h.rejected {
		sum += t
	}
	mean := sum / float64(len(h.rejected))

	var variance float64
	for _, t := range h.rejected {
		variance += (t - mean) * (t - mean)
	}
	variance /= float64(len(h.rejected))

	return math.Sqrt(variance) < s.maxDelta/2
}

// Disabled reports whether the sensor is currently held at its last good value.
func (s *Service) Disabled(sensorID string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	h := s.history[sensorID]
	return h != nil && h.disabled
}

func copyReading(r *model.Reading) *model.Reading {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// RunPruner deletes readings older than retention once per interval until ctx is done.
// A zero retention keeps everything.
func RunPruner(ctx context.Context, dbConn *sql.DB, retention, interval time.Duration) error {
	if retention <= 0 {
		log.Info().Msg("Reading retention disabled, pruner not started")
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		pruneOnce(dbConn, time.Now().Add(-retention))
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func pruneOnce(dbConn *sql.DB, cutoff time.Time) {
	n, err := db.PruneReadings(dbConn, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("Failed to prune readings")
		return
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("Pruned old readings")
	}
}
