package services

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/tyler-smith/go-bip39/wordlists"
)

// wordlist is the BIP39 English wordlist (2048 words).
// Two words plus a number gives 2048 × 2048 × 100 = 419 million invites.
var wordlist = wordlists.English

const maxInviteAttempts = 100

// InviteChecker reports how many teams already use an invite code.
type InviteChecker interface {
	InviteExists(ctx context.Context, invite string) (int64, error)
}

// InviteGenerator creates unique, human-readable team invite codes of the
// form "word-word-number" (e.g. "apple-river-42").
type InviteGenerator struct {
	invites InviteChecker
	intN    func(n int) int
}

func NewInviteGenerator(invites InviteChecker) *InviteGenerator {
	return &InviteGenerator{invites: invites, intN: rand.IntN}
}

// Generate returns an unused invite code, retrying on collisions.
func (g *InviteGenerator) Generate(ctx context.Context) (string, error) {
	for i := 0; i < maxInviteAttempts; i++ {
		invite := fmt.Sprintf("%s-%s-%d",
			wordlist[g.intN(len(wordlist))],
			wordlist[g.intN(len(wordlist))],
			g.intN(100),
		)

		exists, err := g.invites.InviteExists(ctx, invite)
		if err != nil {
			return "", fmt.Errorf("failed to check invite existence: %w", err)
		}
		if exists == 0 {
			return invite, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique invite after %d attempts", maxInviteAttempts)
}
