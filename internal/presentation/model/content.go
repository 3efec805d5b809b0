package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

type ElementType string

const (
	ElementText  ElementType = "text"
	ElementImage ElementType = "image"
	ElementShape ElementType = "shape"
	ElementChart ElementType = "chart"
)

var ErrContentMismatch = errors.New("element content does not match element type")

type TextContent struct {
	Text string `json:"text"`
}

type ImageContent struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

type ShapeContent struct {
	Kind string `json:"kind"`
}

type ChartSeries struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

type ChartContent struct {
	Kind   string        `json:"kind"`
	Labels []string      `json:"labels"`
	Series []ChartSeries `json:"series"`
}

// ElementContent is a closed variant: exactly one payload is set and it must
// agree with the owning element's Type.
type ElementContent struct {
	Text  *TextContent
	Image *ImageContent
	Shape *ShapeContent
	Chart *ChartContent
}

func TextOf(s string) ElementContent { return ElementContent{Text: &TextContent{Text: s}} }
func ImageOf(url string) ElementContent { return ElementContent{Image: &ImageContent{URL: url}} }
func ShapeOf(kind string) ElementContent { return ElementContent{Shape: &ShapeContent{Kind: kind}} }
func ChartOf(c ChartContent) ElementContent { return ElementContent{Chart: &c} }

// Type returns the variant tag, or "" when no payload (or more than one) is set.
func (c ElementContent) Type() ElementType {
	var t ElementType
	n := 0
	if c.Text != nil {
		t, n = ElementText, n+1
	}
	if c.Image != nil {
		t, n = ElementImage, n+1
	}
	if c.Shape != nil {
		t, n = ElementShape, n+1
	}
	if c.Chart != nil {
		t, n = ElementChart, n+1
	}
	if n != 1 {
		return ""
	}
	return t
}

// Validate checks the payload against the declared element type.
func (c ElementContent) Validate(t ElementType) error {
	got := c.Type()
	if got == "" || got != t {
		return fmt.Errorf("%w: type %q, content %q", ErrContentMismatch, t, got)
	}
	if c.Image != nil && c.Image.URL == "" {
		return errors.New("image content requires a url")
	}
	if c.Chart != nil {
		for _, s := range c.Chart.Series {
			if len(s.Values) != len(c.Chart.Labels) {
				return fmt.Errorf("chart series %q has %d values for %d labels", s.Name, len(s.Values), len(c.Chart.Labels))
			}
		}
	}
	return nil
}

type contentEnvelope struct {
	Type ElementType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (c ElementContent) MarshalJSON() ([]byte, error) {
	var payload any
	switch c.Type() {
	case ElementText:
		payload = c.Text
	case ElementImage:
		payload = c.Image
	case ElementShape:
		payload = c.Shape
	case ElementChart:
		payload = c.Chart
	default:
		return []byte("null"), nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(contentEnvelope{Type: c.Type(), Data: data})
}

func (c *ElementContent) UnmarshalJSON(b []byte) error {
	*c = ElementContent{}
	if string(b) == "null" {
		return nil
	}
	var env contentEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	switch env.Type {
	case ElementText:
		c.Text = &TextContent{}
		return json.Unmarshal(env.Data, c.Text)
	case ElementImage:
		c.Image = &ImageContent{}
		return json.Unmarshal(env.Data, c.Image)
	case ElementShape:
		c.Shape = &ShapeContent{}
		return json.Unmarshal(env.Data, c.Shape)
	case ElementChart:
		c.Chart = &ChartContent{}
		return json.Unmarshal(env.Data, c.Chart)
	}
	return fmt.Errorf("unknown element content type %q", env.Type)
}
