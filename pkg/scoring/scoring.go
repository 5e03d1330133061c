// Package scoring ranks articles. New articles get a positional decay score
// at insert time; the Model re-scores articles from user votes with a naive
// bayes classifier over their tokens.
package scoring

import (
	"math"
	"math/rand/v2"
	"regexp"
	"strings"
)

var (
	htmlComments = regexp.MustCompile(`(?s)<!--.*?-->`)
	htmlTags     = regexp.MustCompile(`<[^>]+>`)
	tokenRe      = regexp.MustCompile(`[A-Za-z0-9-$']+`)
	digitsOnly   = regexp.MustCompile(`^[0-9]+$`)
)

// InitialScore returns an exponentially decaying score for the article at
// the given position within its feed's batch, bounded in (0, 1]. The small
// random jitter keeps equal-position articles from tying exactly.
func InitialScore(position int) float64 {
	eps := 0.1 * rand.Float64()
	return math.Exp(-(float64(position) + eps))
}

// Tokenize normalizes text into a token sequence: HTML comments and tags
// stripped, lowercased, tokens of letters/digits/-/$/' extracted, all-digit
// tokens dropped.
func Tokenize(text string) []string {
	text = htmlComments.ReplaceAllString(text, " ")
	text = htmlTags.ReplaceAllString(text, " ")

	raw := tokenRe.FindAllString(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if digitsOnly.MatchString(t) {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens
}

// Token holds per-token vote counts: how many times the token appeared in
// upvoted and downvoted documents.
type Token struct {
	Up   int
	Down int
}

// Model is a naive bayes classifier over voted documents
type Model struct {
	UpDocs          int
	DownDocs        int
	UpTotalTokens   int
	DownTotalTokens int
	Tokens          map[string]Token
}

// Vote is a user judgement on an article
type Vote int

// vote directions
const (
	VoteUp Vote = iota
	VoteDown
)

// NewModel creates an empty vote model
func NewModel() *Model {
	return &Model{Tokens: make(map[string]Token)}
}

// AddDocument records a voted document's tokens into the model
func (m *Model) AddDocument(text string, vote Vote) {
	tokens := Tokenize(text)
	for _, t := range tokens {
		counts := m.Tokens[t]
		if vote == VoteUp {
			counts.Up++
		} else {
			counts.Down++
		}
		m.Tokens[t] = counts
	}

	if vote == VoteUp {
		m.UpDocs++
		m.UpTotalTokens += len(tokens)
	} else {
		m.DownDocs++
		m.DownTotalTokens += len(tokens)
	}
}

// Score returns sigmoid(log P(UP|doc) - log P(DOWN|doc)) for the document's
// tokens: above 0.5 means the model predicts an upvote. Alpha is the Laplace
// smoothing for token counts, beta the smoothing for the document prior.
func (m *Model) Score(tokens []string, alpha, beta float64) float64 {
	vocab := float64(max(len(m.Tokens), 1))

	// prior log-odds
	score := math.Log((float64(m.UpDocs) + beta) / (float64(m.DownDocs) + beta))

	upDenom := float64(m.UpTotalTokens) + alpha*vocab
	downDenom := float64(m.DownTotalTokens) + alpha*vocab

	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}

	for text, count := range counts {
		tok := m.Tokens[text]
		upNum := float64(tok.Up) + alpha
		downNum := float64(tok.Down) + alpha
		score += float64(count) * (math.Log(upNum/upDenom) - math.Log(downNum/downDenom))
	}

	return sigmoid(score)
}

// sigmoid maps log-odds to (0, 1), computed in the numerically stable form
// for either sign
func sigmoid(z float64) float64 {
	if z >= 0 {
		ez := math.Exp(-z)
		return 1 / (1 + ez)
	}
	ez := math.Exp(z)
	return ez / (1 + ez)
}
