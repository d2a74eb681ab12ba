package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conorfennell/ankipack/internal/domain"
	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name          string
		input         string
		expectedCards int
		expectedQ     string
		expectedA     string
		expectedC     string
	}{
		{
			name:          "Simple Q&A",
			input:         "Q: What is the capital of France?\nA: Paris",
			expectedCards: 1,
			expectedQ:     "What is the capital of France?",
			expectedA:     "Paris",
			expectedC:     "",
		},
		{
			name:          "Simple Q, A, and C",
			input:         "Q: What is 1+1?\nA: 2\nC: Basic arithmetic",
			expectedCards: 1,
			expectedQ:     "What is 1+1?",
			expectedA:     "2",
			expectedC:     "Basic arithmetic",
		},
		{
			name: "Multiline Answer",
			input: `
Q: What are the primary colors?
A: Red
Blue
Yellow
`,
			expectedCards: 1,
			expectedQ:     "What are the primary colors?",
			expectedA:     "Red\nBlue\nYellow",
			expectedC:     "",
		},
		{
			name: "Two Cards",
			input: `
Q: First question
A: First answer

Q: Second question
A: Second answer
`,
			expectedCards: 2,
		},
		{
			name: "Card with all fields and multiline",
			input: `
Q: What is Go?
A: A statically typed, compiled programming language.
It was designed at Google.
C: Programming Languages
`,
			expectedCards: 1,
			expectedQ:     "What is Go?",
			expectedA:     "A statically typed, compiled programming language.\nIt was designed at Google.",
			expectedC:     "Programming Languages",
		},
		{
			name:          "No cards, just text",
			input:         "This is a file with no questions.",
			expectedCards: 0,
		},
		{
			name:          "Prefixes with no space",
			input:         "Q:Question\nA:Answer",
			expectedCards: 1,
			expectedQ:     "Question",
			expectedA:     "Answer",
		},
		{
			name: "Separator ends a card",
			input: `
Q: Before
A: Kept
---
A: Orphan answer
`,
			expectedCards: 1,
			expectedQ:     "Before",
			expectedA:     "Kept",
		},
		{
			name: "Trailing blank lines are dropped",
			input: `Q: Spaced

A: Out


`,
			expectedCards: 1,
			expectedQ:     "Spaced",
			expectedA:     "Out",
		},
		{
			name:          "Prefixes inside a code fence are content",
			input:         "Q: What does this print?\n```\nA: not an answer\n```\nA: nothing",
			expectedCards: 1,
			expectedQ:     "What does this print?\n```\nA: not an answer\n```",
			expectedA:     "nothing",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := strings.NewReader(tc.input)
			cards, err := Parse(r)
			if err != nil {
				t.Fatalf("Parse() returned an unexpected error: %v", err)
			}

			if len(cards) != tc.expectedCards {
				t.Fatalf("Expected %d cards, but got %d", tc.expectedCards, len(cards))
			}

			if tc.expectedCards == 1 {
				card := cards[0]
				if card.Question != tc.expectedQ {
					t.Errorf("Expected Question to be '%s', but got '%s'", tc.expectedQ, card.Question)
				}
				if card.Answer != tc.expectedA {
					t.Errorf("Expected Answer to be '%s', but got '%s'", tc.expectedA, card.Answer)
				}
				if card.Context != tc.expectedC {
					t.Errorf("Expected Context to be '%s', but got '%s'", tc.expectedC, card.Context)
				}
			}
		})
	}
}

func TestParse_TwoCardsKeepOrder(t *testing.T) {
	input := `
Q: First question
A: First answer

Q: Second question
A: Second answer
C: Second context
`
	cards, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() returned an unexpected error: %v", err)
	}
	want := []domain.SourceCard{
		{Question: "First question", Answer: "First answer"},
		{Question: "Second question", Answer: "Second answer", Context: "Second context"},
	}
	if diff := cmp.Diff(want, cards); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFile_RecordsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.md")
	if err := os.WriteFile(path, []byte("Q: One\nA: 1\n---\nQ: Two\nA: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cards, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() returned an unexpected error: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("Expected 2 cards, but got %d", len(cards))
	}
	for _, card := range cards {
		if card.Path != path {
			t.Errorf("Expected Path to be '%s', but got '%s'", path, card.Path)
		}
	}
}

func TestParseFile_Missing(t *testing.T) {
	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Fatal("Expected an error for a missing file")
	}
}
