// Package room derives the canonical identifier of a 1-to-1 conversation.
//
// A room id is "chat_" followed by the two participant ids in byte order,
// joined by "_". Backslashes and underscores inside an id are escaped with a
// backslash, so two different pairs can never produce the same room id.
package room

import (
	"errors"
	"strings"
)

const (
	Prefix    = "chat_"
	delimiter = '_'
	escape    = '\\'
)

var (
	ErrEmptyID     = errors.New("participant id must not be empty")
	ErrInvalidRoom = errors.New("not a canonical room id")
)

// Resolve returns the room shared by a and b. Resolve(a, b) == Resolve(b, a).
func Resolve(a, b string) (string, error) {
	if a == "" || b == "" {
		return "", ErrEmptyID
	}
	if b < a {
		a, b = b, a
	}

	var sb strings.Builder
	sb.Grow(len(Prefix) + len(a) + len(b) + 1)
	sb.WriteString(Prefix)
	writeEscaped(&sb, a)
	sb.WriteByte(delimiter)
	writeEscaped(&sb, b)
	return sb.String(), nil
}

func writeEscaped(sb *strings.Builder, id string) {
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c == delimiter || c == escape {
			sb.WriteByte(escape)
		}
		sb.WriteByte(c)
	}
}

// Participants splits a canonical room id back into its two ids
func Participants(roomID string) (string, string, error) {
	if !strings.HasPrefix(roomID, Prefix) {
		return "", "", ErrInvalidRoom
	}
	body := roomID[len(Prefix):]

	parts := make([]string, 0, 2)
	var cur strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == escape:
			if i+1 >= len(body) {
				return "", "", ErrInvalidRoom
			}
			i++
			cur.WriteByte(body[i])
		case c == delimiter:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	parts = append(parts, cur.String())

	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrInvalidRoom
	}

	// only the sorted form is canonical
	if canonical, _ := Resolve(parts[0], parts[1]); canonical != roomID {
		return "", "", ErrInvalidRoom
	}
	return parts[0], parts[1], nil
}

// IsParticipant reports whether userID is one of the two ids encoded in roomID
func IsParticipant(roomID, userID string) bool {
	a, b, err := Participants(roomID)
	if err != nil {
		return false
	}
	return userID == a || userID == b
}
