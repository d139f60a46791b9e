package switchbox

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha512"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/ssh"
)

// determRandIter is the number of times a seed is hashed with SHA-512 to
// strengthen it into pseudo-random stream state.
const determRandIter = 2048

// determRand is a deterministic io.Reader: half of each SHA-512 digest
// becomes the next state, the other half becomes output. Used so a relay
// can be given a reproducible identity (for tests, or for a fleet that
// wants stable fingerprints) without storing a private key on disk.
type determRand struct {
	next []byte
}

func newDetermRand(seed []byte) io.Reader {
	next := seed
	for i := 0; i < determRandIter; i++ {
		sum := sha512.Sum512(next)
		next = sum[:sha512.Size/2]
	}
	return &determRand{next: next}
}

func (d *determRand) Read(b []byte) (int, error) {
	n := 0
	for n < len(b) {
		sum := sha512.Sum512(d.next)
		d.next = sum[:sha512.Size/2]
		n += copy(b[n:], sum[sha512.Size/2:])
	}
	return n, nil
}

// Identity is the relay's own cryptographic identity: a keypair generated
// once per Root and a short fingerprint derived from its public half. The
// authentication frame codec (section 4.3) places this fingerprint in the
// outgoing frame as "the relay's own identity" a service peer can use to
// recognize which relay it is talking to across reconnects.
type Identity struct {
	private     *ecdsa.PrivateKey
	Fingerprint string
}

// NewIdentity generates a new relay identity. If seed is non-empty, the
// keypair is derived deterministically from it (useful for tests and for
// operators who want a stable fingerprint without key storage); otherwise
// a fresh random keypair is generated.
func NewIdentity(seed string) (*Identity, error) {
	var r io.Reader = rand.Reader
	if seed != "" {
		r = newDetermRand([]byte(seed))
	}
	priv, err := ecdsa.GenerateKey(elliptic.P256(), r)
	if err != nil {
		return nil, fmt.Errorf("generating relay identity key: %w", err)
	}
	pub, err := ssh.NewPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("deriving relay identity public key: %w", err)
	}
	return &Identity{
		private:     priv,
		Fingerprint: fingerprintKey(pub),
	}, nil
}

// fingerprintKey returns a colon-separated hex MD5 digest of an SSH-wire-
// encoded public key, the same fingerprint format operators are used to
// verifying out of band (e.g. ssh-keygen -lf).
func fingerprintKey(k ssh.PublicKey) string {
	sum := md5.Sum(k.Marshal())
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":")
}
