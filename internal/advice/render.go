// Package advice turns an /api/advice response into terminal output and
// builds the request location from command-line flags.
package advice

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/hos-care/console/internal/client"
)

// MaxPlaces caps how many hospitals and pharmacies are listed.
const MaxPlaces = 5

// Band is a coarse confidence grade.
type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

// ConfidenceBand grades a retrieval confidence score.
func ConfidenceBand(c float64) Band {
	switch {
	case c >= 0.7:
		return BandHigh
	case c >= 0.4:
		return BandMedium
	default:
		return BandLow
	}
}

func coord(p client.Place) (string, bool) {
	if p.Lat == nil || p.Lon == nil {
		return "", false
	}
	return strconv.FormatFloat(*p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(*p.Lon, 'f', -1, 64), true
}

// MapsSearchURL links to the place on Google Maps, by coordinates when the
// place has them so the search stays local.
func MapsSearchURL(p client.Place) string {
	q, ok := coord(p)
	if !ok {
		q = p.Name
	}
	return "https://www.google.com/maps/search/?" + url.Values{"api": {"1"}, "query": {q}}.Encode()
}

// MapsDirectionsURL links to directions. Places without coordinates have
// none.
func MapsDirectionsURL(p client.Place) (string, bool) {
	c, ok := coord(p)
	if !ok {
		return "", false
	}
	return "https://www.google.com/maps/dir/?" + url.Values{"api": {"1"}, "destination": {c}}.Encode(), true
}

// Markdown lays out resp as a markdown document.
func Markdown(resp *client.AdviceResponse) string {
	var b strings.Builder

	b.WriteString("# Advice\n\n")
	if strings.TrimSpace(resp.Advice) == "" {
		b.WriteString("_No advice returned._\n\n")
	} else {
		b.WriteString(strings.TrimSpace(resp.Advice))
		b.WriteString("\n\n")
	}
	if resp.IsDefaultAdvice {
		b.WriteString("> General advice only. No matching guidance was found.\n\n")
	}

	if len(resp.OTC) > 0 {
		b.WriteString("## Over-the-counter options\n\n")
		for _, o := range resp.OTC {
			fmt.Fprintf(&b, "- %s\n", o)
		}
		b.WriteString("\n")
	}

	if len(resp.References) > 0 {
		b.WriteString("## References\n\n")
		for _, r := range resp.References {
			fmt.Fprintf(&b, "- %s\n", r)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "**Confidence:** %.1f%% (%s)  \n", resp.RAGConfidence*100, ConfidenceBand(resp.RAGConfidence))
	fmt.Fprintf(&b, "**Processing time:** %.2f s\n\n", resp.ProcessingTime)

	if resp.NeedsCrawling {
		b.WriteString("> Confidence is low. The server is collecting more sources for this symptom.\n\n")
	}

	hospitals := firstN(resp.NearbyHospitals, MaxPlaces)
	pharmacies := firstN(resp.NearbyPharmacies, MaxPlaces)
	if len(hospitals) > 0 || len(pharmacies) > 0 {
		writePlaces(&b, "Nearby hospitals", hospitals)
		writePlaces(&b, "Nearby pharmacies", pharmacies)
	}

	return b.String()
}

func firstN(places []client.Place, n int) []client.Place {
	if len(places) > n {
		return places[:n]
	}
	return places
}

func writePlaces(b *strings.Builder, title string, places []client.Place) {
	fmt.Fprintf(b, "## %s\n\n", title)
	if len(places) == 0 {
		b.WriteString("_No results._\n\n")
		return
	}
	for _, p := range places {
		fmt.Fprintf(b, "- **%s**", p.Name)
		if p.Distance != nil {
			fmt.Fprintf(b, " (%.1f km)", *p.Distance)
		}
		fmt.Fprintf(b, " [map](%s)", MapsSearchURL(p))
		if dir, ok := MapsDirectionsURL(p); ok {
			fmt.Fprintf(b, " [directions](%s)", dir)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// Renderer renders advice for a terminal.
type Renderer struct {
	tr *glamour.TermRenderer
}

// NewRenderer creates a renderer. style is a glamour standard style name
// ("dark", "light", "notty", ...); empty picks one from the terminal.
func NewRenderer(style string, width int) (*Renderer, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	tr, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, err
	}
	return &Renderer{tr: tr}, nil
}

// Render formats resp for display.
func (r *Renderer) Render(resp *client.AdviceResponse) (string, error) {
	return r.tr.Render(Markdown(resp))
}
