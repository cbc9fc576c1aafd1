package parser

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	nethtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/aluiziolira/go-scrape-jarvis/config"
	"github.com/aluiziolira/go-scrape-jarvis/models"
)

const (
	accordionClass      = "customerized-accordion"
	accordionItemClass  = "customerized-accordion-item"
	accordionTitleClass = "customerized-accordion-title"
	accordionBodyClass  = "customerized-accordion-content"
	noteOpen            = "「"
	noteClose           = "」"
)

// Description is the assembled styled description of a product page.
type Description struct {
	HTML  string
	Notes []string
	QA    []models.QAPair
}

// BuildDescription renders the image tags, the notes block and the Q&A
// accordion of a product page. Missing markers produce empty sections.
func BuildDescription(page *Page, rules config.DescriptionRules, images []ImageRef) Description {
	desc := Description{Notes: []string{}, QA: []models.QAPair{}}

	var units []*goquery.Selection
	if rules.MarkerSelector != "" {
		units = markerUnits(page.Select(rules.MarkerSelector), rules)
	}

	notesAt := indexOfLabel(units, rules.NotesLabel)
	qaAt := indexOfLabel(units, rules.QALabel)

	answerTexts := make(map[string]struct{})
	var drafts []qaDraft
	if qaAt >= 0 {
		end := len(units)
		if notesAt > qaAt {
			end = notesAt
		}
		drafts = collectQA(units[qaAt+1:end], rules.QuestionStyle, answerTexts)
	}
	var notes []string
	if notesAt >= 0 {
		end := len(units)
		if qaAt > notesAt {
			end = qaAt
		}
		notes = collectNotes(units[notesAt+1:end], rules, answerTexts)
	}

	// Notes render before the Q&A block, so the first disclaimer kept is the
	// first one in the rendered fragment.
	disclaimer := &disclaimerFilter{phrase: rules.Disclaimer, window: rules.DisclaimerWindow}
	for _, note := range notes {
		if disclaimer.keep(note) {
			desc.Notes = append(desc.Notes, note)
		}
	}
	for _, draft := range drafts {
		pair := models.QAPair{Question: draft.question}
		for _, part := range draft.answers {
			if !disclaimer.keep(part.text) {
				continue
			}
			if pair.Answer != "" {
				pair.Answer += "<br>"
			}
			pair.Answer += part.html
		}
		desc.QA = append(desc.QA, pair)
	}

	var b strings.Builder
	for _, img := range images {
		b.WriteString(img.Tag())
	}
	if len(desc.Notes) > 0 {
		b.WriteString(heading(rules.NotesLabel))
		b.WriteString("<p>")
		for i, note := range desc.Notes {
			if i > 0 {
				b.WriteString("<br>")
			}
			b.WriteString(noteOpen + html.EscapeString(note) + noteClose)
		}
		b.WriteString("</p>")
	}
	if len(desc.QA) > 0 {
		b.WriteString(heading(rules.QALabel))
		b.WriteString(`<div class="` + accordionClass + `">`)
		for _, pair := range desc.QA {
			b.WriteString(`<div class="` + accordionItemClass + `">`)
			b.WriteString(`<div class="` + accordionTitleClass + `">` + html.EscapeString(pair.Question) + `</div>`)
			b.WriteString(`<div class="` + accordionBodyClass + `">` + pair.Answer + `</div>`)
			b.WriteString(`</div>`)
		}
		b.WriteString(`</div>`)
	}

	desc.HTML = b.String()
	return desc
}

// disclaimerFilter lets the first disclaimer paragraph through and rejects
// later ones. A text is a disclaimer paragraph when it starts with phrase and
// continues for at most window runes.
type disclaimerFilter struct {
	phrase string
	window int
	seen   bool
}

func (f *disclaimerFilter) keep(text string) bool {
	if f.phrase == "" || !strings.HasPrefix(text, f.phrase) {
		return true
	}
	if utf8.RuneCountInString(text[len(f.phrase):]) > f.window {
		return true
	}
	if f.seen {
		return false
	}
	f.seen = true
	return true
}

func heading(label string) string {
	return "<p><strong>" + html.EscapeString(label) + "</strong></p>"
}

func collectNotes(units []*goquery.Selection, rules config.DescriptionRules, answerTexts map[string]struct{}) []string {
	notes := []string{}
	seen := make(map[string]struct{})
	for _, s := range units {
		text := NormalizeText(s.Text())
		if text == "" || text == rules.NotesLabel || text == rules.QALabel {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		if _, inQA := answerTexts[text]; inQA {
			continue
		}
		seen[text] = struct{}{}
		notes = append(notes, text)
	}
	return notes
}

type qaAnswer struct {
	text string
	html string
}

type qaDraft struct {
	question string
	answers  []qaAnswer
}

// collectQA pairs question units, recognized by questionStyle in their style
// attribute, with the answer units that follow them. Every question and
// answer text is recorded in texts.
func collectQA(units []*goquery.Selection, questionStyle string, texts map[string]struct{}) []qaDraft {
	drafts := []qaDraft{}
	for _, s := range units {
		text := NormalizeText(s.Text())
		if text == "" {
			continue
		}
		if isQuestion(s.Nodes[0], questionStyle) {
			drafts = append(drafts, qaDraft{question: text})
			texts[text] = struct{}{}
			continue
		}
		if len(drafts) == 0 {
			continue
		}
		texts[text] = struct{}{}
		current := &drafts[len(drafts)-1]
		current.answers = append(current.answers, qaAnswer{text: text, html: answerHTML(s)})
	}
	return drafts
}

// answerHTML serializes the span contents with anchors unwrapped.
func answerHTML(s *goquery.Selection) string {
	clone := s.Clone()
	for _, n := range clone.Nodes {
		unwrapAnchors(n)
	}
	out, err := clone.Html()
	if err != nil {
		return html.EscapeString(NormalizeText(s.Text()))
	}
	return strings.TrimSpace(out)
}

func unwrapAnchors(n *nethtml.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == nethtml.ElementNode && c.DataAtom == atom.A {
			unwrapAnchors(c)
			for gc := c.FirstChild; gc != nil; {
				gnext := gc.NextSibling
				c.RemoveChild(gc)
				n.InsertBefore(gc, c)
				gc = gnext
			}
			n.RemoveChild(c)
		} else {
			unwrapAnchors(c)
		}
		c = next
	}
}

func indexOfLabel(units []*goquery.Selection, label string) int {
	if label == "" {
		return -1
	}
	for i, s := range units {
		if NormalizeText(s.Text()) == label {
			return i
		}
	}
	return -1
}

// markerUnits picks the elements that act as one label, question, answer or
// note, in document order. A matched element is a unit unless it wraps a
// label or a question, or wraps several matched elements without text of its
// own; wrappers are skipped so their matched descendants become units. The
// descendants of a unit are never units themselves.
func markerUnits(sel *goquery.Selection, rules config.DescriptionRules) []*goquery.Selection {
	matched := make(map[*nethtml.Node]struct{}, sel.Length())
	for _, n := range sel.Nodes {
		matched[n] = struct{}{}
	}

	units := make([]*goquery.Selection, 0, sel.Length())
	taken := make(map[*nethtml.Node]struct{})
	sel.Each(func(_ int, s *goquery.Selection) {
		n := s.Nodes[0]
		for a := n.Parent; a != nil; a = a.Parent {
			if _, ok := taken[a]; ok {
				return
			}
		}
		if isWrapper(n, matched, rules) {
			return
		}
		taken[n] = struct{}{}
		units = append(units, s)
	})
	return units
}

func isWrapper(n *nethtml.Node, matched map[*nethtml.Node]struct{}, rules config.DescriptionRules) bool {
	if isLabel(n, rules) || isQuestion(n, rules.QuestionStyle) {
		return false
	}
	inner := 0
	structural := false
	var walk func(*nethtml.Node)
	walk = func(p *nethtml.Node) {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if _, ok := matched[c]; ok {
				inner++
				if isLabel(c, rules) || isQuestion(c, rules.QuestionStyle) {
					structural = true
				}
			}
			walk(c)
		}
	}
	walk(n)
	if structural {
		return true
	}
	return inner >= 2 && !hasOwnText(n, matched)
}

func isLabel(n *nethtml.Node, rules config.DescriptionRules) bool {
	text := NormalizeText(nodeText(n))
	return text != "" && (text == rules.NotesLabel || text == rules.QALabel)
}

func isQuestion(n *nethtml.Node, questionStyle string) bool {
	if questionStyle == "" {
		return false
	}
	for _, attr := range n.Attr {
		if attr.Key == "style" {
			return strings.Contains(strings.ToLower(attr.Val), strings.ToLower(questionStyle))
		}
	}
	return false
}

// hasOwnText reports whether n has non-blank text outside its matched
// descendants.
func hasOwnText(n *nethtml.Node, matched map[*nethtml.Node]struct{}) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if _, ok := matched[c]; ok {
			continue
		}
		if c.Type == nethtml.TextNode && strings.TrimSpace(c.Data) != "" {
			return true
		}
		if c.Type == nethtml.ElementNode && hasOwnText(c, matched) {
			return true
		}
	}
	return false
}

func nodeText(n *nethtml.Node) string {
	var b strings.Builder
	var walk func(*nethtml.Node)
	walk = func(p *nethtml.Node) {
		if p.Type == nethtml.TextNode {
			b.WriteString(p.Data)
		}
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
