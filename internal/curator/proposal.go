package curator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aliskhannn/album-curator/internal/model"
)

// ErrInvalidProposal marks a model reply that parsed but violated the
// proposal contract. Callers match it with errors.Is.
var ErrInvalidProposal = errors.New("invalid album proposal")

const (
	fallbackTitle = "My Photos"
	fallbackTheme = "A collection of your uploaded photos"

	maxAlbumCap = 10
)

// buildPrompt constructs the single grouping instruction sent to the
// model alongside the image bytes. Images are referenced by storage key
// in the order they are attached.
func buildPrompt(n int, keys []string) string {
	var b strings.Builder

	b.WriteString("You are a photo curator. Group the attached photos into thematic albums.\n\n")
	b.WriteString("The photos are identified by the following keys, in the same order as attached:\n")
	for i, key := range keys {
		fmt.Fprintf(&b, "%d. %s\n", i+1, key)
	}

	b.WriteString("\nRules:\n")
	b.WriteString("- Assign every photo to exactly one album.\n")
	fmt.Fprintf(&b, "- Create between 1 and %d albums.\n", MaxAlbums(n))
	if n > 1 {
		b.WriteString("- Each album must hold at least 2 photos.\n")
	}
	b.WriteString("- Reply with a single JSON object and nothing else, no prose, matching:\n")
	b.WriteString(`{"albums":[{"title":"...","theme":"...","image_keys":["..."]}]}`)
	b.WriteString("\n")

	return b.String()
}

// MaxAlbums is the upper bound on albums for a batch of n images:
// min(ceil(n/3), 10), never below 1.
func MaxAlbums(n int) int {
	max := (n + 2) / 3
	if max > maxAlbumCap {
		max = maxAlbumCap
	}
	if max < 1 {
		max = 1
	}
	return max
}

// ParseProposal parses a model reply into a proposal and validates it
// against the batch keys. Code fences around the JSON are stripped first;
// models wrap replies in them regardless of instructions.
func ParseProposal(reply string, batchKeys []string) (model.Proposal, error) {
	cleaned := StripCodeFence(reply)

	var proposal model.Proposal
	if err := json.Unmarshal([]byte(cleaned), &proposal); err != nil {
		return model.Proposal{}, fmt.Errorf("failed to parse proposal: %w", err)
	}

	if err := validateProposal(proposal, batchKeys); err != nil {
		return model.Proposal{}, err
	}

	return proposal, nil
}

// validateProposal enforces the proposal contract: a non-empty album
// list, non-blank titles and themes, non-empty key lists, and every key
// drawn from the submitted batch.
func validateProposal(p model.Proposal, batchKeys []string) error {
	if len(p.Albums) == 0 {
		return fmt.Errorf("%w: no albums", ErrInvalidProposal)
	}

	known := make(map[string]struct{}, len(batchKeys))
	for _, key := range batchKeys {
		known[key] = struct{}{}
	}

	for i, a := range p.Albums {
		if strings.TrimSpace(a.Title) == "" {
			return fmt.Errorf("%w: album %d has a blank title", ErrInvalidProposal, i)
		}
		if strings.TrimSpace(a.Theme) == "" {
			return fmt.Errorf("%w: album %d has a blank theme", ErrInvalidProposal, i)
		}
		if len(a.ImageKeys) == 0 {
			return fmt.Errorf("%w: album %d has no images", ErrInvalidProposal, i)
		}

		for _, key := range a.ImageKeys {
			if _, ok := known[key]; !ok {
				return fmt.Errorf("%w: album %d references unknown key %q", ErrInvalidProposal, i, key)
			}
		}
	}

	return nil
}

// StripCodeFence removes a surrounding markdown code fence, with or
// without a language tag, leaving the inner text untouched otherwise.
func StripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// drop the language tag line, e.g. "```json"
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")

	return strings.TrimSpace(trimmed)
}

// Fallback is the deterministic substitute proposal used when the model
// cannot produce a valid grouping: one generic album holding every key
// of the batch unmodified. The pipeline treats it as success, not as a
// job failure.
func Fallback(batchKeys []string) model.Proposal {
	keys := make([]string, len(batchKeys))
	copy(keys, batchKeys)

	return model.Proposal{
		Albums: []model.ProposedAlbum{
			{
				Title:     fallbackTitle,
				Theme:     fallbackTheme,
				ImageKeys: keys,
			},
		},
	}
}
