package slot

// Symbol is one entry in the pay table. Weight governs how often the symbol
// lands on a reel (higher is more likely); Multiplier is the payout factor
// applied to the bet amount when all three reels show this symbol.
type Symbol struct {
	Key        string `json:"key"`
	Icon       string `json:"icon"`
	Weight     int    `json:"weight"`
	Multiplier int    `json:"multiplier"`
}

// DefaultSymbols returns the classic six-symbol pay table. Rarer symbols pay
// more; the catalog is loaded once at startup and never mutated.
func DefaultSymbols() []Symbol {
	return []Symbol{
		{Key: "cherry", Icon: "🍒", Weight: 6, Multiplier: 4},
		{Key: "lemon", Icon: "🍋", Weight: 5, Multiplier: 5},
		{Key: "bell", Icon: "🔔", Weight: 4, Multiplier: 8},
		{Key: "star", Icon: "⭐", Weight: 3, Multiplier: 10},
		{Key: "diamond", Icon: "💎", Weight: 2, Multiplier: 15},
		{Key: "seven", Icon: "7️⃣", Weight: 1, Multiplier: 25},
	}
}
