// Package markov implements a word-chain text model trained on stored
// post content.
package markov

import (
	"errors"
	"math/rand"
	"strings"
	"time"
)

// ErrEmptyCorpus is returned when there is nothing to train on.
var ErrEmptyCorpus = errors.New("corpus is empty")

// ErrGenerationFailed is returned when no acceptable sentence could be
// produced within the configured number of tries.
var ErrGenerationFailed = errors.New("failed to generate a sentence")

const endToken = "\x00"

type state [2]string

// Model is an order-2 word chain. Each input post contributes its lines
// as independent sentences.
type Model struct {
	chain map[state][]string
	rng   *rand.Rand
}

// Constraints bound a generated sentence.
type Constraints struct {
	// MaxChars caps the sentence length; longer candidates are
	// rejected and retried. Zero means 500.
	MaxChars int
	// MaxTries bounds the retry loop. Zero means 10.
	MaxTries int
}

// New trains a model on the corpus. An optional deterministic source can
// be supplied for tests.
func New(corpus []string, rng *rand.Rand) (*Model, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	m := &Model{chain: make(map[state][]string), rng: rng}
	for _, text := range corpus {
		for _, line := range strings.Split(text, "\n") {
			m.addSentence(strings.Fields(line))
		}
	}
	if len(m.chain) == 0 {
		return nil, ErrEmptyCorpus
	}
	return m, nil
}

func (m *Model) addSentence(words []string) {
	if len(words) == 0 {
		return
	}
	cur := state{}
	for _, w := range words {
		m.chain[cur] = append(m.chain[cur], w)
		cur = state{cur[1], w}
	}
	m.chain[cur] = append(m.chain[cur], endToken)
}

// Sentence walks the chain from the start state until an end token,
// retrying until the result fits the constraints.
func (m *Model) Sentence(c Constraints) (string, error) {
	maxChars := c.MaxChars
	if maxChars <= 0 {
		maxChars = 500
	}
	maxTries := c.MaxTries
	if maxTries <= 0 {
		maxTries = 10
	}

	for try := 0; try < maxTries; try++ {
		candidate := m.walk()
		if candidate != "" && len(candidate) <= maxChars {
			return candidate, nil
		}
	}
	return "", ErrGenerationFailed
}

func (m *Model) walk() string {
	var words []string
	cur := state{}
	// Hard cap so a cyclic chain cannot spin forever.
	for len(words) < 256 {
		successors, ok := m.chain[cur]
		if !ok {
			break
		}
		next := successors[m.rng.Intn(len(successors))]
		if next == endToken {
			break
		}
		words = append(words, next)
		cur = state{cur[1], next}
	}
	return strings.Join(words, " ")
}
