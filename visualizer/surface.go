package visualizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

type Color struct{ R, G, B uint8 }

func (c Color) Hex() string { return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B) }

// Surface is a drawing target measured in cells.
type Surface interface {
	Size() (w, h int)
	Clear(c Color)
	FillRect(x, y, w, h int, c Color)
	Present()
}

// Canvas is a terminal Surface: a grid of coloured block cells rendered with
// lipgloss. Present hands the rendered frame to OnFrame.
type Canvas struct {
	mu      sync.Mutex
	w, h    int
	cells   []Color
	frame   string
	onFrame func(string)
	styles  map[Color]lipgloss.Style
	present int
}

func NewCanvas(w, h int, onFrame func(string)) *Canvas {
	c := &Canvas{onFrame: onFrame, styles: map[Color]lipgloss.Style{}}
	c.Resize(w, h)
	return c
}

func (c *Canvas) Resize(w, h int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w, c.h = max(w, 0), max(h, 0)
	c.cells = make([]Color, c.w*c.h)
}

func (c *Canvas) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w, c.h
}

func (c *Canvas) Clear(col Color) {
	c.mu.Lock()
	for i := range c.cells {
		c.cells[i] = col
	}
	c.mu.Unlock()
}

// FillRect clips to the canvas bounds.
func (c *Canvas) FillRect(x, y, w, h int, col Color) {
	c.mu.Lock()
	defer c.mu.Unlock()
	x0, y0 := max(x, 0), max(y, 0)
	x1, y1 := min(x+w, c.w), min(y+h, c.h)
	for yy := y0; yy < y1; yy++ {
		for xx := x0; xx < x1; xx++ {
			c.cells[yy*c.w+xx] = col
		}
	}
}

// At returns the colour of one cell; out of range cells are black.
func (c *Canvas) At(x, y int) Color {
	c.mu.Lock()
	defer c.mu.Unlock()
	if x < 0 || y < 0 || x >= c.w || y >= c.h {
		return Color{}
	}
	return c.cells[y*c.w+x]
}

func (c *Canvas) Present() {
	c.mu.Lock()
	var b strings.Builder
	for y := 0; y < c.h; y++ {
		if y > 0 {
			b.WriteByte('\n')
		}
		row := c.cells[y*c.w : (y+1)*c.w]
		for x := 0; x < len(row); {
			// batch runs of one colour into a single styled span
			end := x
			for end < len(row) && row[end] == row[x] {
				end++
			}
			b.WriteString(c.style(row[x]).Render(strings.Repeat("█", end-x)))
			x = end
		}
	}
	c.frame = b.String()
	c.present++
	frame, onFrame := c.frame, c.onFrame
	c.mu.Unlock()

	if onFrame != nil {
		onFrame(frame)
	}
}

func (c *Canvas) style(col Color) lipgloss.Style {
	s, ok := c.styles[col]
	if !ok {
		s = lipgloss.NewStyle().Foreground(lipgloss.Color(col.Hex()))
		c.styles[col] = s
	}
	return s
}

// Frame is the last presented frame.
func (c *Canvas) Frame() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// Presents counts Present calls.
func (c *Canvas) Presents() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.present
}
