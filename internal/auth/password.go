package auth

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	dummyMu     sync.Mutex
	dummyHashes = map[int][]byte{}
)

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// BurnPasswordCheck runs a throwaway bcrypt comparison at cost.  Login calls
// it for unknown identities so a miss takes as long as a wrong password;
// cost must be the one real hashes are stored with.
func BurnPasswordCheck(plain string, cost int) {
	_ = bcrypt.CompareHashAndPassword(dummyHash(cost), []byte(plain))
}

func dummyHash(cost int) []byte {
	dummyMu.Lock()
	defer dummyMu.Unlock()
	if h, ok := dummyHashes[cost]; ok {
		return h
	}
	h, err := bcrypt.GenerateFromPassword([]byte("agency-booking"), cost)
	if err != nil {
		// cost above bcrypt.MaxCost, which real hashing rejects too
		h, _ = bcrypt.GenerateFromPassword([]byte("agency-booking"), bcrypt.DefaultCost)
	}
	dummyHashes[cost] = h
	return h
}
