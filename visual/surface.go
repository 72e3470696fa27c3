package visual

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// ImageSurface draws into an RGBA image. The backing image is allocated on
// the first Layout call with a non-zero size and never reallocated.
type ImageSurface struct {
	mu  sync.Mutex
	img *image.RGBA
}

// Layout sizes the surface if it has not been sized yet and reports whether
// the surface is ready for drawing.
func (s *ImageSurface) Layout(width, height int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil && width > 0 && height > 0 {
		s.img = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	return s.img != nil
}

func (s *ImageSurface) Image() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img
}

func (s *ImageSurface) Bounds() (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return 0, 0
	}
	b := s.img.Bounds()
	return float64(b.Dx()), float64(b.Dy())
}

func (s *ImageSurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img != nil {
		draw.Draw(s.img, s.img.Bounds(), image.Transparent, image.Point{}, draw.Src)
	}
}

func (s *ImageSurface) FillRect(x, y, w, h float64, c color.Color) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return
	}
	r := image.Rect(
		int(math.Round(x)), int(math.Round(y)),
		int(math.Round(x+w)), int(math.Round(y+h)),
	).Intersect(s.img.Bounds())
	draw.Draw(s.img, r, image.NewUniform(c), image.Point{}, draw.Src)
}

// TermSurface draws into a character grid using half-block glyphs, so each
// cell holds two vertical pixels.
type TermSurface struct {
	mu     sync.Mutex
	cols   int
	rows   int
	pixels []string // lipgloss color per pixel, "" when empty
	styles map[string]lipgloss.Style
}

// Layout sizes the grid on the first call with a non-zero size.
func (s *TermSurface) Layout(cols, rows int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pixels == nil && cols > 0 && rows > 0 {
		s.cols, s.rows = cols, rows
		s.pixels = make([]string, cols*rows*2)
		s.styles = make(map[string]lipgloss.Style)
	}
	return s.pixels != nil
}

func (s *TermSurface) Bounds() (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(s.cols), float64(s.rows * 2)
}

func (s *TermSurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.pixels)
}

func (s *TermSurface) FillRect(x, y, w, h float64, c color.Color) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pixels == nil {
		return
	}
	hex := toHex(c)
	x0, x1 := clampInt(int(math.Floor(x)), 0, s.cols), clampInt(int(math.Ceil(x+w)), 0, s.cols)
	y0, y1 := clampInt(int(math.Floor(y)), 0, s.rows*2), clampInt(int(math.Ceil(y+h)), 0, s.rows*2)
	for py := y0; py < y1; py++ {
		for px := x0; px < x1; px++ {
			s.pixels[py*s.cols+px] = hex
		}
	}
}

// Render returns the grid as styled text, one line per row.
func (s *TermSurface) Render() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pixels == nil {
		return ""
	}
	var b strings.Builder
	for cy := 0; cy < s.rows; cy++ {
		for cx := 0; cx < s.cols; cx++ {
			top := s.pixels[(cy*2)*s.cols+cx]
			bot := s.pixels[(cy*2+1)*s.cols+cx]
			switch {
			case top == "" && bot == "":
				b.WriteString(" ")
			case top == bot:
				b.WriteString(s.style(top, "").Render("█"))
			case bot == "":
				b.WriteString(s.style(top, "").Render("▀"))
			case top == "":
				b.WriteString(s.style(bot, "").Render("▄"))
			default:
				b.WriteString(s.style(top, bot).Render("▀"))
			}
		}
		if cy < s.rows-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (s *TermSurface) style(fg, bg string) lipgloss.Style {
	key := fg + "/" + bg
	if st, ok := s.styles[key]; ok {
		return st
	}
	st := lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
	if bg != "" {
		st = st.Background(lipgloss.Color(bg))
	}
	s.styles[key] = st
	return st
}

func toHex(c color.Color) string {
	if c == nil {
		c = color.White
	}
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
