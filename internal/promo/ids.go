package promo

import (
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const clientIDDigits = 19

// NewClientID returns "<epoch-ms>-<19 random digits>". The value only has to
// avoid device collisions on the remote side.
func NewClientID() string {
	var b strings.Builder
	b.Grow(14 + 1 + clientIDDigits)
	b.WriteString(strconv.FormatInt(time.Now().UnixMilli(), 10))
	b.WriteByte('-')
	for i := 0; i < clientIDDigits; i++ {
		b.WriteByte(byte('0' + rand.Intn(10)))
	}
	return b.String()
}

// NewEventID returns a fresh identifier for one register-event call.
func NewEventID() string {
	return uuid.NewString()
}
