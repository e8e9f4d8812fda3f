// Package randstate owns the two pseudo-random generators used by stochastic
// preprocessing and snapshots their exact state as checkpoints.
//
// The general-purpose generator is a PCG; the numeric-array generator is a
// ChaCha8. Both serialize their complete state, so restoring a checkpoint
// reproduces every later draw bit for bit.
package randstate

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
)

// ErrBadCheckpoint reports a checkpoint blob that is not a generator state
var ErrBadCheckpoint = errors.New("invalid generator checkpoint")

// Checkpoint holds the opaque state of both generators
type Checkpoint struct {
	General []byte
	Array   []byte
}

// IsZero reports whether the checkpoint was never captured
func (c Checkpoint) IsZero() bool {
	return len(c.General) == 0 && len(c.Array) == 0
}

// Equal compares both state blobs
func (c Checkpoint) Equal(o Checkpoint) bool {
	return bytes.Equal(c.General, o.General) && bytes.Equal(c.Array, o.Array)
}

// Clone returns a checkpoint that shares no memory with c
func (c Checkpoint) Clone() Checkpoint {
	return Checkpoint{General: bytes.Clone(c.General), Array: bytes.Clone(c.Array)}
}

// Validate checks that both blobs unmarshal into generator states
func (c Checkpoint) Validate() error {
	_, _, err := c.decode()
	return err
}

func (c Checkpoint) decode() (*rand.PCG, *rand.ChaCha8, error) {
	pcg := new(rand.PCG)
	if err := pcg.UnmarshalBinary(c.General); err != nil {
		return nil, nil, fmt.Errorf("%w: general: %v", ErrBadCheckpoint, err)
	}
	var seed [32]byte
	chacha := rand.NewChaCha8(seed)
	if err := chacha.UnmarshalBinary(c.Array); err != nil {
		return nil, nil, fmt.Errorf("%w: array: %v", ErrBadCheckpoint, err)
	}
	return pcg, chacha, nil
}

// Generators is the pair of generators shared by the preprocessing pipeline
type Generators struct {
	pcg     *rand.PCG
	chacha  *rand.ChaCha8
	general *rand.Rand
	array   *rand.Rand
}

// New seeds both generators from a single seed
func New(seed uint64) *Generators {
	var key [32]byte
	s := seed
	for i := 0; i < len(key); i += 8 {
		s = splitmix64(s)
		binary.LittleEndian.PutUint64(key[i:], s)
	}
	pcg := rand.NewPCG(seed, splitmix64(^seed))
	chacha := rand.NewChaCha8(key)
	return &Generators{
		pcg:     pcg,
		chacha:  chacha,
		general: rand.New(pcg),
		array:   rand.New(chacha),
	}
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// General returns the general-purpose generator
func (g *Generators) General() *rand.Rand { return g.general }

// Array returns the generator used for numeric-array draws
func (g *Generators) Array() *rand.Rand { return g.array }

// Capture snapshots both generator states
func (g *Generators) Capture() (Checkpoint, error) {
	general, err := g.pcg.MarshalBinary()
	if err != nil {
		return Checkpoint{}, fmt.Errorf("capturing general generator: %w", err)
	}
	array, err := g.chacha.MarshalBinary()
	if err != nil {
		return Checkpoint{}, fmt.Errorf("capturing array generator: %w", err)
	}
	return Checkpoint{General: general, Array: array}, nil
}

// Restore resets both generators to a captured state. Restoring the same
// checkpoint again yields the same sequence. On error neither generator changes.
func (g *Generators) Restore(c Checkpoint) error {
	pcg, chacha, err := c.decode()
	if err != nil {
		return err
	}
	*g.pcg = *pcg
	*g.chacha = *chacha
	return nil
}
