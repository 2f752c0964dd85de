package domain

import "encoding/json"

// MarshalJSON flattens the canonical fields and Extra into a single object,
// so a payload round-trips verbatim through create/get even though the
// engine only ever reads amount/days/category out of it.
func (p *Payload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+3)
	for k, v := range p.Extra {
		out[k] = v
	}
	if p.Amount != nil {
		out["amount"] = *p.Amount
	}
	if p.Days != nil {
		out["days"] = *p.Days
	}
	if p.Category != "" {
		out["category"] = p.Category
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the canonical fields it understands and preserves
// every other key in Extra, for verbatim round-trip on read.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Extra = make(map[string]any, len(raw))
	for k, v := range raw {
		switch k {
		case "amount":
			if f, ok := toFloat(v); ok {
				p.Amount = &f
				continue
			}
		case "days":
			if f, ok := toFloat(v); ok {
				d := int(f)
				p.Days = &d
				continue
			}
		case "category":
			if s, ok := v.(string); ok {
				p.Category = s
				continue
			}
		}
		p.Extra[k] = v
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
