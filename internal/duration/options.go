package duration

// Option is one entry of the fixed activation duration selection.
type Option struct {
	Token string `json:"token"`
	Label string `json:"label"`
}

// optionTokens is the selection offered to users. Any valid token is still
// accepted by the managers.
var optionTokens = []string{"PT30M", "PT1H", "PT2H", "PT4H", "PT8H"}

// DefaultToken is preselected by consumers.
const DefaultToken = "PT1H"

// Options returns the fixed activation duration selection with labels.
func Options() []Option {
	out := make([]Option, 0, len(optionTokens))
	for _, tok := range optionTokens {
		out = append(out, Option{Token: tok, Label: Format(tok)})
	}
	return out
}
