package pkg

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// JoinCodeAlphabet excludes the visually confusable I, O, 0 and 1.
const JoinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const JoinCodeLength = 10

// GenerateID - generates a new unique id for games, rooms, tickets and players.
func GenerateID() string {
	return uuid.NewString()
}

// GenerateJoinCode - generates a private room join code.
func GenerateJoinCode() (string, error) {
	alphabetLen := big.NewInt(int64(len(JoinCodeAlphabet)))

	code := make([]byte, JoinCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("failed to generate join code: %w", err)
		}

		code[i] = JoinCodeAlphabet[n.Int64()]
	}

	return string(code), nil
}
