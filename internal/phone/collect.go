package phone

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Token is a raw phone-like string plus the label it was found under.
// Documents may give it as a bare string or as {text, label}.
type Token struct {
	Text  string `json:"text" yaml:"text"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

type tokenFields Token

// UnmarshalJSON accepts "614-555-1212" as well as the object form.
func (t *Token) UnmarshalJSON(data []byte) error {
	if b := bytes.TrimSpace(data); len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return eris.Wrap(err, "phone: decode token")
		}
		*t = Token{Text: s}
		return nil
	}
	var f tokenFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*t = Token(f)
	return nil
}

// UnmarshalYAML is UnmarshalJSON for YAML documents.
func (t *Token) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*t = Token{Text: value.Value}
		return nil
	}
	var f tokenFields
	if err := value.Decode(&f); err != nil {
		return err
	}
	*t = Token(f)
	return nil
}

// Set holds a lead's numbers split by source. Primary numbers come from the
// click-to-call widget; Extra numbers come from policy text and never
// repeat a key already present in Primary.
type Set struct {
	Primary []Candidate `json:"primary"`
	Extra   []Candidate `json:"extra"`
}

// Collect normalizes both token lists and de-duplicates across them,
// primary first.
func Collect(primary, extra []string) Set {
	return CollectTokens(plainTokens(primary), plainTokens(extra))
}

// CollectTokens is Collect for labeled tokens.
func CollectTokens(primary, extra []Token) Set {
	seen := make(map[Key]bool, len(primary)+len(extra))
	return Set{
		Primary: collectInto(primary, seen),
		Extra:   collectInto(extra, seen),
	}
}

func collectInto(tokens []Token, seen map[Key]bool) []Candidate {
	var out []Candidate
	for _, t := range tokens {
		c, ok := Normalize(t.Text, t.Label)
		if !ok {
			continue
		}
		k := c.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

func plainTokens(ss []string) []Token {
	out := make([]Token, len(ss))
	for i, s := range ss {
		out[i] = Token{Text: s}
	}
	return out
}

// All returns primary then extra candidates.
func (s Set) All() []Candidate {
	out := make([]Candidate, 0, len(s.Primary)+len(s.Extra))
	out = append(out, s.Primary...)
	return append(out, s.Extra...)
}

// HasValid reports whether any candidate is a valid 10-digit NANP number.
func (s Set) HasValid() bool {
	for _, c := range s.All() {
		if c.IsValid10() {
			return true
		}
	}
	return false
}
