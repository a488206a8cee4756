// Package attributes generates the pseudo-random attributes of a new record.
package attributes

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"registrar/internal/registry/models"
	"registrar/internal/registry/ports"
)

const domainTag = "registrar/attributes/v1"

// Generator combines a beacon sample, the caller's seed and the current tick
// into attributes. Output is a pure function of those three inputs.
type Generator struct {
	beacon ports.Beacon
}

func New(beacon ports.Beacon) (*Generator, error) {
	if beacon == nil {
		return nil, fmt.Errorf("beacon is required")
	}
	return &Generator{beacon: beacon}, nil
}

// Generate samples the beacon with seed as its tag and mixes in tick. A
// beacon failure is returned as models.ErrBeaconUnavailable; there is no
// fallback value.
func (g *Generator) Generate(ctx context.Context, seed []byte, tick models.Sequence) (models.Attributes, error) {
	if err := models.ValidateSeed(seed); err != nil {
		return models.Attributes{}, err
	}

	sample, err := g.beacon.Sample(ctx, seed, tick)
	if err != nil {
		if errors.Is(err, models.ErrBeaconUnavailable) {
			return models.Attributes{}, err
		}
		return models.Attributes{}, fmt.Errorf("%w: %w", models.ErrBeaconUnavailable, err)
	}

	dna := Mix(sample, seed, tick)
	return models.Attributes{
		DNA:      dna,
		Lucky:    dna[0],
		Seed:     append([]byte(nil), seed...),
		Sequence: tick,
	}, nil
}

// Mix derives the DNA vector from a beacon sample, seed and tick.
func Mix(sample [32]byte, seed []byte, tick models.Sequence) models.DNA {
	buf := make([]byte, 0, len(domainTag)+32+binary.MaxVarintLen64+len(seed)+8)
	buf = append(buf, domainTag...)
	buf = append(buf, sample[:]...)
	buf = binary.AppendUvarint(buf, uint64(len(seed)))
	buf = append(buf, seed...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(tick))
	return models.DNA(blake2b.Sum256(buf))
}
