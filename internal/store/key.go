package store

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Entity kinds known to the store.
const (
	KindProfile    = "Profile"
	KindConference = "Conference"
	KindSession    = "Session"
)

// ErrInvalidKey is returned when a websafe key string cannot be decoded.
var ErrInvalidKey = errors.New("invalid entity key")

// Key identifies an entity. A key is either named (Name set) or numeric
// (IntID set, allocated by the store). Keys form ancestor paths: a key's
// Root defines its locality group for transactional purposes.
type Key struct {
	Kind   string
	Name   string
	IntID  int64
	Parent *Key
}

// NameKey builds a key with a caller-assigned string identifier.
func NameKey(kind, name string, parent *Key) *Key {
	return &Key{Kind: kind, Name: name, Parent: parent}
}

// IDKey builds a key with a store-allocated numeric identifier.
func IDKey(kind string, id int64, parent *Key) *Key {
	return &Key{Kind: kind, IntID: id, Parent: parent}
}

// Root walks up the ancestor chain and returns the locality-group root.
func (k *Key) Root() *Key {
	for k.Parent != nil {
		k = k.Parent
	}
	return k
}

// Equal reports whether two keys name the same entity.
func (k *Key) Equal(o *Key) bool {
	if k == nil || o == nil {
		return k == o
	}
	return k.String() == o.String()
}

// String returns the key's path form, e.g.
// "Profile:alice/Conference:#42/Session:#7".
// Numeric ids carry a '#' marker so named and numeric keys never collide.
func (k *Key) String() string {
	var elems []string
	for cur := k; cur != nil; cur = cur.Parent {
		var id string
		if cur.Name != "" {
			id = url.PathEscape(cur.Name)
		} else {
			id = "#" + strconv.FormatInt(cur.IntID, 10)
		}
		elems = append([]string{cur.Kind + ":" + id}, elems...)
	}
	return strings.Join(elems, "/")
}

// Encode returns the websafe form of the key, suitable for use in URLs and
// for storage inside profile membership sets.
func (k *Key) Encode() string {
	return base64.RawURLEncoding.EncodeToString([]byte(k.String()))
}

// DecodeKey parses a websafe key produced by Encode.
func DecodeKey(s string) (*Key, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return DecodeKeyPath(string(raw))
}

// DecodeKeyPath parses a key's internal path form as produced by String.
func DecodeKeyPath(path string) (*Key, error) {
	var key *Key
	for _, elem := range strings.Split(path, "/") {
		kind, id, ok := strings.Cut(elem, ":")
		if !ok || kind == "" || id == "" {
			return nil, fmt.Errorf("%w: malformed element %q", ErrInvalidKey, elem)
		}
		if rest, numeric := strings.CutPrefix(id, "#"); numeric {
			n, err := strconv.ParseInt(rest, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad numeric id %q", ErrInvalidKey, id)
			}
			key = IDKey(kind, n, key)
		} else {
			name, err := url.PathUnescape(id)
			if err != nil {
				return nil, fmt.Errorf("%w: bad name %q", ErrInvalidKey, id)
			}
			key = NameKey(kind, name, key)
		}
	}
	if key == nil {
		return nil, ErrInvalidKey
	}
	return key, nil
}
