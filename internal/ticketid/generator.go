package ticketid

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/spec-kit/ticket-bot/internal/repository"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util"
)

const (
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	idLength = 8

	// maxAttempts bounds collision retries. Exhausting it is terminal, not
	// transient; callers must not retry the whole operation indefinitely.
	maxAttempts = 5
)

var alphabetLen = big.NewInt(int64(len(alphabet)))

// Generate returns an 8-character identifier drawn uniformly from [A-Z0-9]
// using a cryptographically strong source.
func Generate() (string, error) {
	id := make([]byte, idLength)
	for i := range id {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		id[i] = alphabet[n.Int64()]
	}
	return string(id), nil
}

// GenerateUnique returns an identifier not present in the store, retrying a
// bounded number of times on collision.
func GenerateUnique(ctx context.Context, store repository.TicketStore) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		id, err := Generate()
		if err != nil {
			return "", apperrors.NewCreationFailed("id generation failed", err)
		}
		existing, err := store.GetByID(ctx, id)
		if err != nil {
			return "", apperrors.NewCreationFailed("id uniqueness check failed", err)
		}
		if existing == nil {
			return id, nil
		}
	}
	return "", apperrors.NewCreationFailed("unable to allocate ticket id", nil)
}
