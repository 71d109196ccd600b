// Package keygen derives cache keys from input text.
package keygen

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Params are the inputs that determine an embedding, and so its key.
type Params struct {
	Model     string // embedding model; vectors from different models never share a key
	Text      string
	Namespace string // optional isolation prefix
}

// Generator produces SHA-256 based keys.
type Generator struct {
	// Prefix is prepended to all generated keys.
	Prefix string
}

// New creates a Generator with an optional prefix.
func New(prefix string) *Generator {
	return &Generator{Prefix: prefix}
}

// Generate returns [prefix:][namespace:]sha256(model|text) in hex.
func (g *Generator) Generate(p Params) string {
	h := sha256.New()
	h.Write([]byte("model:"))
	h.Write([]byte(p.Model))
	h.Write([]byte("|text:"))
	h.Write([]byte(p.Text))
	return g.join(p.Namespace, hex.EncodeToString(h.Sum(nil)))
}

// FromText hashes raw content with no model component.
func (g *Generator) FromText(namespace, text string) string {
	sum := sha256.Sum256([]byte(text))
	return g.join(namespace, hex.EncodeToString(sum[:]))
}

func (g *Generator) join(namespace, digest string) string {
	var key strings.Builder
	if g.Prefix != "" {
		key.WriteString(g.Prefix)
		key.WriteString(":")
	}
	if namespace != "" {
		key.WriteString(namespace)
		key.WriteString(":")
	}
	key.WriteString(digest)
	return key.String()
}
