package service

import "sync"

var defaultPalette = []string{
	"#E57373", "#64B5F6", "#81C784", "#FFB74D",
	"#BA68C8", "#4DB6AC", "#F06292", "#A1887F",
}

// ColorAllocator hands out presence colors round-robin from a fixed palette.
// Colors repeat once the palette is exhausted.
type ColorAllocator struct {
	mu      sync.Mutex
	palette []string
	next    int
}

func NewColorAllocator(palette []string) *ColorAllocator {
	if len(palette) == 0 {
		palette = defaultPalette
	}
	return &ColorAllocator{palette: append([]string(nil), palette...)}
}

func (a *ColorAllocator) Next() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := a.palette[a.next%len(a.palette)]
	a.next++
	return c
}

// Reset restarts allocation from the first palette entry.
func (a *ColorAllocator) Reset() {
	a.mu.Lock()
	a.next = 0
	a.mu.Unlock()
}
