// Package resource defines the structural keys that address cached reads.
package resource

import (
	"errors"
	"fmt"
	"strings"
)

// Collection names a server-side collection of entities.
type Collection string

const (
	Recipes Collection = "recipes"
	Wines   Collection = "wines"
	Users   Collection = "users"
)

// idSeparator joins tokens into the canonical map identity of a Key.
// Tokens may not contain it.
const idSeparator = "\x1f"

// Key identifies a logical read as an ordered sequence of tokens, for example
// (recipes) for a listing or (recipes, 7) for a single item. Keys are compared
// by their token sequence.
type Key struct {
	tokens []string
}

// NewKey builds a Key from one or more non-empty tokens.
func NewKey(tokens ...string) (Key, error) {
	if len(tokens) == 0 {
		return Key{}, errors.New("key must have at least one token")
	}
	for i, t := range tokens {
		if t == "" {
			return Key{}, fmt.Errorf("key token %d is empty", i)
		}
		if strings.Contains(t, idSeparator) {
			return Key{}, fmt.Errorf("key token %d contains a reserved separator", i)
		}
	}
	cp := make([]string, len(tokens))
	copy(cp, tokens)
	return Key{tokens: cp}, nil
}

// List is the key for every item in a collection.
func List(c Collection) Key {
	return Key{tokens: []string{string(c)}}
}

// Detail is the key for a single item in a collection. An empty id yields a
// zero Key, which the cache refuses.
func Detail(c Collection, id string) Key {
	k, err := NewKey(string(c), id)
	if err != nil {
		return Key{}
	}
	return k
}

// CurrentUser is the key for the signed-in user's profile.
func CurrentUser() Key {
	return Key{tokens: []string{string(Users), "me"}}
}

// Tokens returns a copy of the key's tokens.
func (k Key) Tokens() []string {
	cp := make([]string, len(k.tokens))
	copy(cp, k.tokens)
	return cp
}

// Len is the number of tokens.
func (k Key) Len() int { return len(k.tokens) }

// IsZero reports whether the key has no tokens.
func (k Key) IsZero() bool { return len(k.tokens) == 0 }

// Collection returns the first token.
func (k Key) Collection() Collection {
	if k.IsZero() {
		return ""
	}
	return Collection(k.tokens[0])
}

// Equal reports structural equality.
func (k Key) Equal(o Key) bool {
	if len(k.tokens) != len(o.tokens) {
		return false
	}
	for i := range k.tokens {
		if k.tokens[i] != o.tokens[i] {
			return false
		}
	}
	return true
}

// IsPrefixOf reports whether k's tokens are an exact prefix of o's tokens.
// A key is a prefix of itself.
func (k Key) IsPrefixOf(o Key) bool {
	if k.IsZero() || len(k.tokens) > len(o.tokens) {
		return false
	}
	for i := range k.tokens {
		if k.tokens[i] != o.tokens[i] {
			return false
		}
	}
	return true
}

// ID is the canonical identity used to index the key in maps.
func (k Key) ID() string {
	return strings.Join(k.tokens, idSeparator)
}

// String renders the key as a tuple, e.g. "(recipes, 7)".
func (k Key) String() string {
	return "(" + strings.Join(k.tokens, ", ") + ")"
}
