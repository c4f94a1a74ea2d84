package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/aevon-lab/segment-relay/internal/guest"
)

const (
	anonymousNamespace = "segment-anon"
	anonymousSeparator = "-dc-"

	// OverflowMarker is appended instead of a hash when the actor id alone fills the token.
	OverflowMarker = "ovf"
)

var (
	// ErrEmptyActorID is returned when an anonymous id is requested for an actor without an id.
	ErrEmptyActorID = errors.New("actor id is empty")

	// ErrAnonymousIDOverflow accompanies a marked, over-length token for very long actor ids.
	ErrAnonymousIDOverflow = errors.New("actor id too long for a fixed-length anonymous id")
)

// DeterministicAnonymousID derives the anonymous id "<actorID>-dc-<hash>" of exactly 36 characters.
// The hash is SHA-256 over the namespace, the actor id and secret, so the same (actorID, secret)
// always yields the same token. Rotating secret invalidates every previously issued id.
//
// When the prefix alone is 36 characters or longer the token is prefix+OverflowMarker and the
// error is ErrAnonymousIDOverflow; the value is still usable and stable.
func DeterministicAnonymousID(actorID, secret string) (string, error) {
	if actorID == "" {
		return "", ErrEmptyActorID
	}

	prefix := actorID + anonymousSeparator
	if len(prefix) >= guest.TokenLength {
		return prefix + OverflowMarker, ErrAnonymousIDOverflow
	}

	sum := sha256.Sum256([]byte(anonymousNamespace + ":" + actorID + ":" + secret))
	digest := hex.EncodeToString(sum[:])

	return prefix + digest[:guest.TokenLength-len(prefix)], nil
}
