package password

import (
	"fmt"
	"math"
	"runtime"

	"github.com/caarlos0/env/v11"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password validation and anti-DoS boundaries.
type Policy struct {
	MinLength int
	MaxLength int
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
// A Config is immutable after construction and safe for concurrent use.
type Config struct {
	Params Argon2idParams
	Policy Policy
	// MaxBcryptCost bounds legacy hashes accepted by Verify.
	MaxBcryptCost int
}

// passwordEnv holds raw env values. Parallelism 0 selects the CPU-aware default.
type passwordEnv struct {
	MinLength      int    `env:"WAYPOINT_PASSWORD_MIN_LEN"          envDefault:"8"`
	MaxLength      int    `env:"WAYPOINT_PASSWORD_MAX_LEN"          envDefault:"128"`
	RejectVeryWeak bool   `env:"WAYPOINT_PASSWORD_REJECT_VERY_WEAK" envDefault:"false"`
	MemoryKiB      uint32 `env:"WAYPOINT_ARGON2_MEMORY_KIB"         envDefault:"65536"`
	Iterations     uint32 `env:"WAYPOINT_ARGON2_ITERATIONS"         envDefault:"3"`
	Parallelism    uint32 `env:"WAYPOINT_ARGON2_PARALLELISM"        envDefault:"0"`
	SaltLength     uint32 `env:"WAYPOINT_ARGON2_SALT_LEN"           envDefault:"16"`
	KeyLength      uint32 `env:"WAYPOINT_ARGON2_KEY_LEN"            envDefault:"32"`
	MaxBcryptCost  int    `env:"WAYPOINT_BCRYPT_MAX_COST"           envDefault:"14"`
}

// DefaultConfig returns the baseline used when no env overrides are present.
func DefaultConfig() Config {
	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024, // 64 MiB
			Iterations:  3,
			Parallelism: defaultParallelism(),
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      8,
			MaxLength:      128,
			RejectVeryWeak: false,
		},
		MaxBcryptCost: 14,
	}
}

// defaultParallelism clamps NumCPU to [1..4] to keep container usage predictable.
func defaultParallelism() uint8 {
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}
	return uint8(threads) // #nosec G115 -- clamped to [1..4] above.
}

// FromEnv loads config from environment variables.
//
// Env surface:
// - WAYPOINT_PASSWORD_MIN_LEN
// - WAYPOINT_PASSWORD_MAX_LEN
// - WAYPOINT_PASSWORD_REJECT_VERY_WEAK (true/false)
// - WAYPOINT_ARGON2_MEMORY_KIB
// - WAYPOINT_ARGON2_ITERATIONS
// - WAYPOINT_ARGON2_PARALLELISM
// - WAYPOINT_ARGON2_SALT_LEN
// - WAYPOINT_ARGON2_KEY_LEN
// - WAYPOINT_BCRYPT_MAX_COST
func FromEnv() (Config, error) {
	var raw passwordEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	checks := []struct {
		key        string
		val        uint64
		minV, maxV uint64
	}{
		{"WAYPOINT_PASSWORD_MIN_LEN", nonNegative(raw.MinLength), 1, 1024},
		{"WAYPOINT_PASSWORD_MAX_LEN", nonNegative(raw.MaxLength), 1, 4096},
		{"WAYPOINT_ARGON2_MEMORY_KIB", uint64(raw.MemoryKiB), 8 * 1024, 1024 * 1024}, // 8 MiB .. 1 GiB
		{"WAYPOINT_ARGON2_ITERATIONS", uint64(raw.Iterations), 1, 20},
		{"WAYPOINT_ARGON2_PARALLELISM", uint64(raw.Parallelism), 0, 64},
		{"WAYPOINT_ARGON2_SALT_LEN", uint64(raw.SaltLength), 8, 64},
		{"WAYPOINT_ARGON2_KEY_LEN", uint64(raw.KeyLength), 16, 64},
		{"WAYPOINT_BCRYPT_MAX_COST", nonNegative(raw.MaxBcryptCost), 4, 31},
	}
	for _, c := range checks {
		if c.val < c.minV || c.val > c.maxV {
			return Config{}, fmt.Errorf("%s: out of range [%d..%d]", c.key, c.minV, c.maxV)
		}
	}

	par := defaultParallelism()
	if raw.Parallelism != 0 {
		p, err := u32ToU8(raw.Parallelism)
		if err != nil {
			return Config{}, fmt.Errorf("WAYPOINT_ARGON2_PARALLELISM: %w", err)
		}
		par = p
	}

	cfg := Config{
		Params: Argon2idParams{
			MemoryKiB:   raw.MemoryKiB,
			Iterations:  raw.Iterations,
			Parallelism: par,
			SaltLength:  raw.SaltLength,
			KeyLength:   raw.KeyLength,
		},
		Policy: Policy{
			MinLength:      raw.MinLength,
			MaxLength:      raw.MaxLength,
			RejectVeryWeak: raw.RejectVeryWeak,
		},
		MaxBcryptCost: raw.MaxBcryptCost,
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

func nonNegative(n int) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func u32ToU8(u uint32) (uint8, error) {
	if u > math.MaxUint8 {
		return 0, fmt.Errorf("out of range [0..%d]", math.MaxUint8)
	}
	return uint8(u), nil
}
