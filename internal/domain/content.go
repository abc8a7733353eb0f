package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SubmitContent is the proof a member attaches to a submission. It is stored as JSONB.
type SubmitContent struct {
	Text    string   `json:"text,omitempty"`
	Links   []string `json:"links,omitempty"`
	Images  []string `json:"images,omitempty"`
	Account string   `json:"account,omitempty"`
}

// Validate rejects content that carries no proof at all.
func (c SubmitContent) Validate() error {
	if strings.TrimSpace(c.Text) == "" && len(c.Links) == 0 && len(c.Images) == 0 {
		return Validation("submit content is required")
	}
	for _, l := range c.Links {
		if strings.TrimSpace(l) == "" {
			return Validation("submit content contains an empty link")
		}
	}
	return nil
}

// PlainText returns the proof text with markup stripped, joined with account and links.
// It feeds the keyword filter of submission lists.
func (c SubmitContent) PlainText() string {
	parts := make([]string, 0, 2+len(c.Links))
	if text := stripHTML(c.Text); text != "" {
		parts = append(parts, text)
	}
	if c.Account != "" {
		parts = append(parts, c.Account)
	}
	parts = append(parts, c.Links...)
	return strings.Join(parts, " ")
}

func stripHTML(s string) string {
	s = strings.TrimSpace(s)
	if !strings.ContainsAny(s, "<>") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// MarshalContent encodes content for the submit_content column.
func MarshalContent(c SubmitContent) ([]byte, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal submit content: %w", err)
	}
	return b, nil
}

// UnmarshalContent decodes the submit_content column. An empty column yields zero content.
func UnmarshalContent(b []byte) (SubmitContent, error) {
	var c SubmitContent
	if len(b) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("unmarshal submit content: %w", err)
	}
	return c, nil
}
