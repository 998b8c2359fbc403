package registry

import "math/rand/v2"

const (
	DefaultAlphabet   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	DefaultCodeLength = 6
)

// CodeGenerator produces candidate short codes. It does not check for
// collisions; the Registry retries until it finds an unused code.
type CodeGenerator interface {
	Generate() string
}

type RandomGenerator struct {
	alphabet string
	length   int
}

func NewRandomGenerator(alphabet string, length int) *RandomGenerator {
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}
	if length <= 0 {
		length = DefaultCodeLength
	}
	return &RandomGenerator{alphabet: alphabet, length: length}
}

// Generate picks every character uniformly from the alphabet.
func (g *RandomGenerator) Generate() string {
	code := make([]byte, g.length)
	for i := range code {
		code[i] = g.alphabet[rand.IntN(len(g.alphabet))]
	}
	return string(code)
}
