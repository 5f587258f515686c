package utils

import "testing"

func TestCleanDisplay(t *testing.T) {
	h := NewStringHelper()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "whitespace runs", input: "  Smith   &\tJones  ", want: "Smith & Jones"},
		{name: "leading and trailing separators", input: "- Smith & Co ;", want: "Smith & Co"},
		{name: "keeps trailing full stop", input: "Acme Legal Ltd.", want: "Acme Legal Ltd."},
		{name: "drops leading full stop", input: ". Acme", want: "Acme"},
		{name: "keeps full stop opening a word", input: ".NET Legal", want: ".NET Legal"},
		{name: "separator before dotted word", input: "- .NET Legal", want: ".NET Legal"},
		{name: "lone full stop", input: " . ", want: ""},
		{name: "curly apostrophe", input: "O\u2019Brien Solicitors", want: "O'Brien Solicitors"},
		{name: "non-breaking space", input: "Baker\u00a0LLP", want: "Baker LLP"},
		{name: "case preserved", input: "mcKENZIE law", want: "mcKENZIE law"},
		{name: "only junk", input: " ,;- ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := h.CleanDisplay(tt.input)
			if got != tt.want {
				t.Errorf("CleanDisplay(%q) = %q, want %q", tt.input, got, tt.want)
			}

			if again := h.CleanDisplay(got); again != got {
				t.Errorf("CleanDisplay not idempotent: %q -> %q", got, again)
			}
		})
	}
}
