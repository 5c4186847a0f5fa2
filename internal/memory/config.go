package memory

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Strategy selects the free block used to satisfy an allocation.
type Strategy int

const (
	// FirstFit takes the first free block large enough, in free-list order.
	FirstFit Strategy = iota
	// BestFit takes the smallest free block large enough.
	BestFit
)

func (s Strategy) String() string {
	if s == BestFit {
		return "best_fit"
	}
	return "first_fit"
}

// ParseStrategy accepts "first_fit"/"first-fit"/"firstfit" and the best-fit equivalents.
// Empty input yields FirstFit.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ReplaceAll(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", ""), "_", "") {
	case "", "firstfit", "first":
		return FirstFit, nil
	case "bestfit", "best":
		return BestFit, nil
	default:
		return FirstFit, fmt.Errorf("unknown allocation strategy %q", s)
	}
}

// DefaultAlignment is used when neither the pool config nor the caller sets one.
const DefaultAlignment = 32

// minSplit is the smallest remainder worth turning into its own free block.
const minSplit = 8

// Config configures a Pool.
type Config struct {
	// Name labels metrics and log lines.
	Name string
	// Size of the owned arena in bytes. Ignored when Arena is set.
	Size int
	// Arena, when non-nil, is used as backing memory instead of allocating one.
	// The caller keeps ownership; Close does not release it.
	Arena []byte
	// Strategy is the placement strategy.
	Strategy Strategy
	// Alignment is the default allocation granularity; must be a power of two.
	Alignment int
	Logger    *zerolog.Logger
}

func (c Config) validate() error {
	if c.Arena == nil && c.Size <= 0 {
		return fmt.Errorf("memory pool %q: size must be positive", c.Name)
	}
	if c.Arena != nil && len(c.Arena) == 0 {
		return fmt.Errorf("memory pool %q: external arena is empty", c.Name)
	}
	if c.Alignment != 0 && !isPow2(c.Alignment) {
		return fmt.Errorf("memory pool %q: alignment %d is not a power of two", c.Name, c.Alignment)
	}
	return nil
}

func isPow2(n int) bool { return n > 0 && n&(n-1) == 0 }

func alignUp(n, a int) int { return (n + a - 1) &^ (a - 1) }
