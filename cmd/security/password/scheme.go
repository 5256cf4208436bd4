package password

import (
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Scheme versions embedded in (or implied by) stored hashes.
const (
	VersionLegacy   = 1
	VersionArgon2id = 2

	// CurrentVersion is the version every new Hash produces.
	CurrentVersion = VersionArgon2id
)

// Algorithm names reported by Inspect.
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

// Info is the metadata encoded in a stored hash.
type Info struct {
	Algorithm string
	Version   int
	// Params is populated for Argon2id hashes only.
	Params Argon2idParams
}

type parsedHash struct {
	info       Info
	raw        string
	salt       []byte
	digest     []byte
	bcryptCost int
}

// Inspect decodes the metadata of encodedHash without hashing anything.
func Inspect(encodedHash string) (Info, error) {
	h, err := parse(encodedHash)
	if err != nil {
		return Info{}, err
	}
	return h.info, nil
}

// NeedsUpgrade reports whether encodedHash was produced by a scheme version
// older than currentVersion. It is pure metadata inspection.
func NeedsUpgrade(encodedHash string, currentVersion int) (bool, error) {
	info, err := Inspect(encodedHash)
	if err != nil {
		return false, err
	}
	return info.Version < currentVersion, nil
}

func parse(encoded string) (parsedHash, error) {
	switch {
	case strings.HasPrefix(encoded, "$argon2id$"):
		return parseArgon2id(encoded)
	case strings.HasPrefix(encoded, "$2a$"),
		strings.HasPrefix(encoded, "$2b$"),
		strings.HasPrefix(encoded, "$2y$"):
		return parseBcrypt(encoded)
	default:
		return parsedHash{}, ErrInvalidHash
	}
}

func parseBcrypt(encoded string) (parsedHash, error) {
	cost, err := bcrypt.Cost([]byte(encoded))
	if err != nil {
		return parsedHash{}, ErrInvalidHash
	}
	return parsedHash{
		info:       Info{Algorithm: AlgorithmBcrypt, Version: VersionLegacy},
		raw:        encoded,
		bcryptCost: cost,
	}, nil
}

// parseArgon2id accepts both the versioned and the pre-versioning layout:
// $argon2id$v=19$m=65536,t=3,p=1,ver=2$<salt>$<hash>
// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
func parseArgon2id(encoded string) (parsedHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != AlgorithmArgon2id {
		return parsedHash{}, ErrInvalidHash
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2Version) {
		return parsedHash{}, ErrInvalidHash
	}

	mem, it, par, ver, ok := parseArgon2Params(parts[3])
	if !ok {
		return parsedHash{}, ErrInvalidHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return parsedHash{}, ErrInvalidHash
	}
	digest, err := b64.DecodeString(parts[5])
	if err != nil || len(digest) == 0 {
		return parsedHash{}, ErrInvalidHash
	}

	return parsedHash{
		info: Info{
			Algorithm: AlgorithmArgon2id,
			Version:   ver,
			Params: Argon2idParams{
				MemoryKiB:   mem,
				Iterations:  it,
				// #nosec G115 -- par is bounded to 255 and both lengths come from short base64 segments.
				Parallelism: uint8(par),
				SaltLength:  uint32(len(salt)),
				KeyLength:   uint32(len(digest)),
			},
		},
		raw:    encoded,
		salt:   salt,
		digest: digest,
	}, nil
}

// parseArgon2Params parses "m=..,t=..,p=..[,ver=N]". A missing ver means VersionLegacy.
func parseArgon2Params(s string) (mem, it, par uint32, ver int, ok bool) {
	fields := strings.Split(s, ",")
	if len(fields) != 3 && len(fields) != 4 {
		return 0, 0, 0, 0, false
	}
	if _, err := fmt.Sscanf(strings.Join(fields[:3], ","), "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return 0, 0, 0, 0, false
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return 0, 0, 0, 0, false
	}

	ver = VersionLegacy
	if len(fields) == 4 {
		v, found := strings.CutPrefix(fields[3], "ver=")
		if !found {
			return 0, 0, 0, 0, false
		}
		if _, err := fmt.Sscanf(v, "%d", &ver); err != nil || ver < VersionArgon2id {
			return 0, 0, 0, 0, false
		}
		if fmt.Sprintf("%d", ver) != v {
			return 0, 0, 0, 0, false
		}
	}
	return mem, it, par, ver, true
}
