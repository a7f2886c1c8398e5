package markup

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"mangwale-chat/internal/model"
)

// Affordance micro-format embedded in assistant text:
//
//	button  = "[btn:" label "|" value "]"
//	card    = "[card:" json-object "]"
//
// Inside label and value a backslash escapes the next character, so "\|", "\]"
// and "\\" are literal. A card body is a JSON ProductCard. Tokens that do not
// match the grammar are left in the text untouched.

const (
	buttonPrefix = "[btn:"
	cardPrefix   = "[card:"
)

// Parsed is the result of scanning a payload: PlainText or TextWithAffordances.
type Parsed interface {
	Text() string
	isParsed()
}

// PlainText carries a payload with no affordances, exactly as received.
type PlainText struct {
	Content string
}

func (p PlainText) Text() string { return p.Content }
func (PlainText) isParsed()      {}

// TextWithAffordances carries the cleaned display text and what was extracted.
type TextWithAffordances struct {
	Content string
	Buttons []model.OptionButton
	Cards   []model.ProductCard
}

func (p TextWithAffordances) Text() string { return p.Content }
func (TextWithAffordances) isParsed()      {}

var (
	tokenEscaper   = strings.NewReplacer(`\`, `\\`, `|`, `\|`, `]`, `\]`, `[`, `\[`)
	trailingSpaces = regexp.MustCompile(`[ \t]+\n`)
	blankRuns      = regexp.MustCompile(`\n{3,}`)
)

// Parse extracts buttons and cards from text. It never fails:
// malformed markup degrades to plain text.
func Parse(text string) Parsed {
	if !strings.Contains(text, buttonPrefix) && !strings.Contains(text, cardPrefix) {
		return PlainText{Content: text}
	}

	var (
		out     strings.Builder
		buttons []model.OptionButton
		cards   []model.ProductCard
	)

	for i := 0; i < len(text); {
		rest := text[i:]

		switch {
		case strings.HasPrefix(rest, buttonPrefix):
			if btn, n, ok := scanButton(rest); ok {
				buttons = append(buttons, btn)
				i += n
				continue
			}
		case strings.HasPrefix(rest, cardPrefix):
			if card, n, ok := scanCard(rest); ok {
				if card.ID == "" {
					card.ID = "card-" + strconv.Itoa(len(cards))
				}
				if card.Action.Value == "" {
					card.Action.Value = card.ID
				}
				cards = append(cards, card)
				i += n
				continue
			}
		}

		out.WriteByte(text[i])
		i++
	}

	if len(buttons) == 0 && len(cards) == 0 {
		return PlainText{Content: text}
	}

	return TextWithAffordances{
		Content: tidy(out.String()),
		Buttons: buttons,
		Cards:   cards,
	}
}

// Render encodes p back into the micro-format.
func Render(p Parsed) string {
	rich, ok := p.(TextWithAffordances)
	if !ok {
		return p.Text()
	}

	var b strings.Builder
	b.WriteString(rich.Content)
	if rich.Content != "" {
		b.WriteByte(' ')
	}
	for _, btn := range rich.Buttons {
		b.WriteString(buttonPrefix)
		b.WriteString(escapeToken(btn.Label))
		b.WriteByte('|')
		b.WriteString(escapeToken(btn.Value))
		b.WriteByte(']')
	}
	for _, card := range rich.Cards {
		payload, err := json.Marshal(card)
		if err != nil {
			continue
		}
		b.WriteString(cardPrefix)
		b.Write(payload)
		b.WriteByte(']')
	}
	return b.String()
}

// scanButton reads one button token at the start of s and returns the number of
// bytes consumed.
func scanButton(s string) (model.OptionButton, int, bool) {
	i := len(buttonPrefix)

	label, n, ok := scanEscaped(s[i:], '|')
	if !ok {
		return model.OptionButton{}, 0, false
	}
	i += n

	value, n, ok := scanEscaped(s[i:], ']')
	if !ok {
		return model.OptionButton{}, 0, false
	}
	i += n

	label = strings.TrimSpace(label)
	value = strings.TrimSpace(value)
	if label == "" || value == "" {
		return model.OptionButton{}, 0, false
	}
	return model.OptionButton{ID: value, Label: label, Value: value}, i, true
}

// scanEscaped reads up to and including the unescaped terminator. A newline or
// an unescaped '[' before the terminator means the token is malformed.
func scanEscaped(s string, term byte) (string, int, bool) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			i++
			b.WriteByte(s[i])
		case c == term:
			return b.String(), i + 1, true
		case c == '\n' || c == '[':
			return "", 0, false
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, false
}

func scanCard(s string) (model.ProductCard, int, bool) {
	body := s[len(cardPrefix):]
	trimmed := strings.TrimLeft(body, " ")
	if !strings.HasPrefix(trimmed, "{") {
		return model.ProductCard{}, 0, false
	}
	skipped := len(body) - len(trimmed)

	dec := json.NewDecoder(strings.NewReader(trimmed))
	var card model.ProductCard
	if err := dec.Decode(&card); err != nil {
		return model.ProductCard{}, 0, false
	}

	end := int(dec.InputOffset())
	tail := strings.TrimLeft(trimmed[end:], " ")
	if !strings.HasPrefix(tail, "]") {
		return model.ProductCard{}, 0, false
	}
	consumed := len(cardPrefix) + skipped + (len(trimmed) - len(tail)) + 1

	if strings.TrimSpace(card.Name) == "" {
		return model.ProductCard{}, 0, false
	}
	if card.Action.Label == "" {
		card.Action.Label = card.Name
	}
	return card, consumed, true
}

func escapeToken(s string) string {
	return tokenEscaper.Replace(s)
}

func tidy(s string) string {
	s = trailingSpaces.ReplaceAllString(s, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
