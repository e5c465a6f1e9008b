package domain

const MaxIdentityLen = 36

// Identity is the display name a participant picked. It doubles as the
// addressing key for signaling envelopes, so it must be non-empty and
// unique inside a room.
type Identity string

func NewIdentity(name string) (Identity, error) {
	if len(name) == 0 {
		return "", ErrIdentityEmpty
	}
	if len(name) > MaxIdentityLen {
		return "", ErrIdentityTooLong
	}
	return Identity(name), nil
}
